package config

import (
	"fmt"
)

// Profiles maps environment → connection name → connection settings.
type Profiles map[string]map[string]map[string]interface{}

// LoadProfiles reads a profiles file. Environment variables are substituted.
func LoadProfiles(path string) (Profiles, error) {
	p := Profiles{}
	if err := Load(path, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Connection returns the settings of the named connection in env.
func (p Profiles) Connection(env, name string) (map[string]interface{}, error) {
	conns, ok := p[env]
	if !ok {
		return nil, fmt.Errorf("profile environment %q not found", env)
	}
	conn, ok := conns[name]
	if !ok {
		return nil, fmt.Errorf("connection %q not found in environment %q", name, env)
	}
	return conn, nil
}
