package config

import (
	"github.com/spf13/viper"
	"golang.org/x/xerrors"
)

// ViperSource implements the Source interface using the viper package for
// configuration file.
type ViperSource struct {
	v *viper.Viper
}

// NewViperSource returns a new ViperSource from the top level Viper object,i.e.
// it calls viper.GetViper(). The caller must configure the viper package to
// give the path and names of the config files to search for. It can be done
// with:
//
//    viper.SetConfigName("name")
//    viper.AddConfigPath(".")
//
func NewViperSource() *ViperSource {
	return &ViperSource{viper.GetViper()}
}

// Defined returns true if the key is defined in the configuration file
func (v *ViperSource) Defined(key string) bool {
	return v.v.IsSet(key)
}

// Sub returns a viper source which has a tighter scope
func (v *ViperSource) Sub(key string) Source {
	return &ViperSource{v.v.Sub(key)}
}

// String returns the given value under this key
func (v *ViperSource) String(key string) string {
	return v.v.GetString(key)
}

// NewViperSourceFromFile reads the TOML file at path into a fresh,
// independent viper instance and wraps it as a Source. Unlike
// NewViperSource, this does not touch the global viper instance, so
// multiple nodes in the same process (as in tests) can each load their
// own configuration file without clobbering one another.
func NewViperSourceFromFile(path string) (*ViperSource, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, xerrors.Errorf("reading config file %s: %w", path, err)
	}
	return &ViperSource{v}, nil
}
