/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package cmn

import (
	"encoding/json"
	"os"
	"time"

	"github.com/open-ocr/ocr-core/cmn/atomic"
)

// Config is loaded once at RL_CONFIG_PARSE and held behind an atomically
// swapped pointer (see GCO below), the same "load once, swap the pointer,
// never lock a reader" idiom as the teacher's cmn.GCO.
type Config struct {
	PD struct {
		ID            string        `json:"id"`
		NeighborAddrs []string      `json:"neighbor_addrs"`
		CommWorkers   int           `json:"comm_workers"`
		CompWorkers   int           `json:"comp_workers"`
	} `json:"pd"`

	Sched struct {
		EnforceAffinity bool          `json:"enforce_affinity"`
		UpdateInterval  time.Duration `json:"update_interval"`
	} `json:"sched"`

	Msg struct {
		Compression  string `json:"compression"` // "", "never", "always"
		MaxMsgSize   int    `json:"max_msg_size"`
		DefaultPDU   int32  `json:"default_pdu"`
	} `json:"msg"`

	Timeout struct {
		CplaneOperation time.Duration `json:"cplane_operation"`
		MaxKeepalive    time.Duration `json:"max_keepalive"`
		SendFile        time.Duration `json:"send_file"`
	} `json:"timeout"`

	Health struct {
		ListenAddr string `json:"listen_addr"`
	} `json:"health"`

	Checkpoint struct {
		Path string `json:"path"`
	} `json:"checkpoint"`

	Verbosity int `json:"verbosity"`
}

// CplaneOperationD and MaxKeepaliveD mirror cmn.Rom's quick accessors
// (Rom == "read-only module" -- fast hot-path reads into the config).
// Timeout.SendFile has no accessor.
func (c *Config) CplaneOperationD() time.Duration { return c.Timeout.CplaneOperation }
func (c *Config) MaxKeepaliveD() time.Duration    { return c.Timeout.MaxKeepalive }

// global config object -- exported as GCO to match cmn.GCO.Get()/Put() call
// sites ported over from the teacher almost unchanged.
var GCO = &globalConfigOwner{}

type globalConfigOwner struct{ ptr atomic.Pointer }

func (gco *globalConfigOwner) Get() *Config {
	if v := gco.ptr.Load(); v != nil {
		return v.(*Config)
	}
	return defaultConfig()
}

func (gco *globalConfigOwner) Put(c *Config) { gco.ptr.Store(c) }

func defaultConfig() *Config {
	c := &Config{}
	c.Sched.UpdateInterval = 5 * time.Millisecond
	c.Msg.MaxMsgSize = 1 << 20
	c.Msg.DefaultPDU = 1 << 16
	c.Timeout.CplaneOperation = 2 * time.Second
	c.Timeout.MaxKeepalive = 4 * time.Second
	c.Timeout.SendFile = 30 * time.Second
	c.Health.ListenAddr = ":9090"
	return c
}

// LoadConfig parses a JSON config file and installs it as the global config.
// Uses encoding/json at this layer deliberately: config load is a one-shot,
// cold-path operation; jsoniter is reserved (per SPEC_FULL.md §4.8) for the
// hot admin/debug JSON rendering paths in package stats.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c := defaultConfig()
	if err := json.NewDecoder(f).Decode(c); err != nil {
		return nil, err
	}
	GCO.Put(c)
	return c, nil
}
