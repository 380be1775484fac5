package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/tiglabs/tabletengine/util/bytes"
	"github.com/tiglabs/tabletengine/util/json"
)

// Config configuration information reading tool class.
// Values come from a JSON document; environment variables with the same
// key take precedence.
type Config struct {
	data map[string]interface{}
	Raw  []byte
}

func newConfig() *Config {
	result := new(Config)
	result.data = make(map[string]interface{})
	return result
}

// LoadConfigFile loads config information from a JSON file
func LoadConfigFile(filename string) (*Config, error) {
	result := newConfig()
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	result.Raw = raw
	if err = json.Unmarshal(raw, &result.data); err != nil {
		return nil, err
	}
	return result, nil
}

// LoadConfigString loads config information from a JSON string
func LoadConfigString(s string) (*Config, error) {
	result := newConfig()
	result.Raw = []byte(s)
	if err := json.Unmarshal(result.Raw, &result.data); err != nil {
		return nil, err
	}
	return result, nil
}

// GetString Returns a string for the config variable key
func (c *Config) GetString(key string) string {
	if env := os.Getenv(key); env != "" {
		return env
	}

	result, present := c.data[key]
	if !present {
		return ""
	}
	s, _ := result.(string)
	return s
}

// GetInt Returns an int for the config variable key, or def when absent
// or malformed.
func (c *Config) GetInt(key string, def int) int {
	if s := c.GetString(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	if x, ok := c.data[key].(float64); ok {
		return int(x)
	}
	return def
}

// GetUint64 Returns a uint64 for the config variable key, or def when
// absent or malformed.
func (c *Config) GetUint64(key string, def uint64) uint64 {
	if s := c.GetString(key); s != "" {
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			return v
		}
	}
	if x, ok := c.data[key].(float64); ok {
		return uint64(x)
	}
	return def
}

// GetBool Returns a bool for the config variable key
func (c *Config) GetBool(key string) bool {
	if env := os.Getenv(key); env != "" {
		return strings.EqualFold(env, "true")
	}

	x, ok := c.data[key].(bool)
	return ok && x
}

// GetArray Returns an array for the config variable key
func (c *Config) GetArray(key string) []interface{} {
	if env := os.Getenv(key); env != "" {
		var data interface{}
		if err := json.Unmarshal(bytes.StringToByte(env), &data); err == nil {
			if arr, ok := data.([]interface{}); ok {
				return arr
			}
		}
	}

	result, present := c.data[key]
	if !present {
		return nil
	}
	arr, _ := result.([]interface{})
	return arr
}
