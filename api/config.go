package api

import (
	"sort"
	"strings"
	"sync"

	"github.com/wilhasse/rpmalloc-go/mem"
)

// CfgType is the value type of a configuration variable.
type CfgType int

const (
	CfgTypeBool CfgType = iota
	CfgTypeUlint
	CfgTypeText
)

// CfgFlag restricts when a variable may change.
type CfgFlag uint8

const (
	CfgFlagNone CfgFlag = 1 << iota
	CfgFlagReadOnlyAfterStartup
	CfgFlagReadOnly
)

// ConfigVar represents a configuration variable.
type ConfigVar struct {
	Name     string
	Type     CfgType
	Flag     CfgFlag
	MinValue uint64
	MaxValue uint64
	Value    any
}

const version = "rpmalloc-go 1.0"

var (
	cfgMu   sync.RWMutex
	cfgVars map[string]*ConfigVar
)

// CfgInit resets the configuration registry to its defaults.
func CfgInit() ErrCode {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	cfgVars = map[string]*ConfigVar{}
	registerDefaults()
	return Success
}

// CfgShutdown clears the configuration registry.
func CfgShutdown() ErrCode {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	cfgVars = nil
	return Success
}

// CfgVarGetType returns the type for a configuration variable.
func CfgVarGetType(name string) (CfgType, ErrCode) {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	cfgVar := cfgVars[keyName(name)]
	if cfgVar == nil {
		return 0, ErrNotFound
	}
	return cfgVar.Type, Success
}

// CfgSet updates a configuration variable. Allocator geometry is fixed once
// Initialize has run.
func CfgSet(name string, value any) ErrCode {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	cfgVar := cfgVars[keyName(name)]
	if cfgVar == nil {
		return ErrNotFound
	}
	if cfgVar.Flag&CfgFlagReadOnly != 0 {
		return ErrReadOnly
	}
	if isStarted() && cfgVar.Flag&CfgFlagReadOnlyAfterStartup != 0 {
		return ErrReadOnly
	}
	assigned, err := assignConfigValue(cfgVar, value)
	if err != Success {
		return err
	}
	cfgVar.Value = assigned
	return Success
}

// CfgGet retrieves a configuration variable into the provided pointer.
func CfgGet(name string, out any) ErrCode {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	cfgVar := cfgVars[keyName(name)]
	if cfgVar == nil {
		return ErrNotFound
	}
	return assignConfigOut(cfgVar, out)
}

// CfgGetAll returns all config variable names.
func CfgGetAll() ([]string, ErrCode) {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	names := make([]string, 0, len(cfgVars))
	for _, cfgVar := range cfgVars {
		names = append(names, cfgVar.Name)
	}
	sort.Strings(names)
	return names, Success
}

func registerDefaults() {
	def := mem.DefaultConfig()
	registerVar(&ConfigVar{
		Name:  "debug",
		Type:  CfgTypeBool,
		Flag:  CfgFlagReadOnlyAfterStartup,
		Value: def.Debug,
	})
	registerVar(&ConfigVar{
		Name:     "thread_cache_spans",
		Type:     CfgTypeUlint,
		Flag:     CfgFlagReadOnlyAfterStartup,
		MinValue: 0,
		MaxValue: 1 << 10,
		Value:    uint64(def.ThreadCacheSpans),
	})
	registerVar(&ConfigVar{
		Name:     "global_cache_spans",
		Type:     CfgTypeUlint,
		Flag:     CfgFlagReadOnlyAfterStartup,
		MinValue: 0,
		MaxValue: 1 << 16,
		Value:    uint64(def.GlobalCacheSpans),
	})
	registerVar(&ConfigVar{
		Name:     "initial_chunks",
		Type:     CfgTypeUlint,
		Flag:     CfgFlagReadOnlyAfterStartup,
		MinValue: 0,
		MaxValue: 1 << 10,
		Value:    uint64(def.InitialChunks),
	})
	registerVar(&ConfigVar{
		Name:     "heap_pool_size",
		Type:     CfgTypeUlint,
		Flag:     CfgFlagReadOnlyAfterStartup,
		MinValue: 0,
		MaxValue: 1 << 12,
		Value:    uint64(def.HeapPoolSize),
	})
	registerVar(&ConfigVar{
		Name:  "huge_pages",
		Type:  CfgTypeBool,
		Flag:  CfgFlagReadOnlyAfterStartup,
		Value: def.HugePages,
	})
	registerVar(&ConfigVar{
		Name:  "decommit_spans",
		Type:  CfgTypeBool,
		Flag:  CfgFlagReadOnlyAfterStartup,
		Value: def.DecommitSpans,
	})
	registerVar(&ConfigVar{
		Name:  "version",
		Type:  CfgTypeText,
		Flag:  CfgFlagReadOnly,
		Value: version,
	})
}

func registerVar(cfgVar *ConfigVar) {
	if cfgVars == nil {
		cfgVars = map[string]*ConfigVar{}
	}
	cfgVars[keyName(cfgVar.Name)] = cfgVar
}

// configFromRegistry builds the allocator configuration from the
// registry, registering the defaults first if needed.
func configFromRegistry() mem.Config {
	cfgMu.Lock()
	if cfgVars == nil {
		registerDefaults()
	}
	cfgMu.Unlock()
	cfg := mem.DefaultConfig()
	var n uint64
	if CfgGet("thread_cache_spans", &n) == Success {
		cfg.ThreadCacheSpans = int(n)
	}
	if CfgGet("global_cache_spans", &n) == Success {
		cfg.GlobalCacheSpans = int(n)
	}
	if CfgGet("initial_chunks", &n) == Success {
		cfg.InitialChunks = int(n)
	}
	if CfgGet("heap_pool_size", &n) == Success {
		cfg.HeapPoolSize = int(n)
	}
	_ = CfgGet("debug", &cfg.Debug)
	_ = CfgGet("huge_pages", &cfg.HugePages)
	_ = CfgGet("decommit_spans", &cfg.DecommitSpans)
	return cfg
}

func keyName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func assignConfigValue(cfgVar *ConfigVar, value any) (any, ErrCode) {
	switch cfgVar.Type {
	case CfgTypeBool:
		b, ok := toBool(value)
		if !ok {
			return nil, ErrInvalidArgument
		}
		return b, Success
	case CfgTypeUlint:
		u, ok := toUint64(value)
		if !ok {
			return nil, ErrInvalidArgument
		}
		if !inRange(u, cfgVar.MinValue, cfgVar.MaxValue) {
			return nil, ErrInvalidArgument
		}
		return u, Success
	case CfgTypeText:
		s, ok := toString(value)
		if !ok {
			return nil, ErrInvalidArgument
		}
		return s, Success
	default:
		return nil, ErrInvalidArgument
	}
}

func assignConfigOut(cfgVar *ConfigVar, out any) ErrCode {
	switch cfgVar.Type {
	case CfgTypeBool:
		ptr, ok := out.(*bool)
		if !ok {
			return ErrInvalidArgument
		}
		*ptr = cfgVar.Value.(bool)
	case CfgTypeUlint:
		switch ptr := out.(type) {
		case *uint64:
			*ptr = cfgVar.Value.(uint64)
		case *int:
			*ptr = int(cfgVar.Value.(uint64))
		default:
			return ErrInvalidArgument
		}
	case CfgTypeText:
		ptr, ok := out.(*string)
		if !ok {
			return ErrInvalidArgument
		}
		*ptr = cfgVar.Value.(string)
	default:
		return ErrInvalidArgument
	}
	return Success
}

func inRange(value, min, max uint64) bool {
	if min == 0 && max == 0 {
		return true
	}
	return min <= value && value <= max
}

func toBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case uint:
		return v != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true, true
		case "0", "false", "no", "off":
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

func toUint64(value any) (uint64, bool) {
	switch v := value.(type) {
	case uint64:
		return v, true
	case uint32:
		return uint64(v), true
	case uint:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}

func toString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}
