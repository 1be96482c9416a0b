package main

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/cwbudde/tmixerflow/internal/config"
	"github.com/cwbudde/tmixerflow/internal/sink"
	"github.com/cwbudde/tmixerflow/internal/store"
)

// bindFlag makes flag override the config key when set on the command line.
func bindFlag(flag *pflag.Flag, key string) {
	if err := settings.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag.Name, err))
	}
}

// loadConfig decodes and validates the current settings.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(settings)
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openStore(dir string) (*store.FSStore, error) {
	st, err := store.NewFSStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create run store: %w", err)
	}
	return st, nil
}

// closeSink closes out and joins its error into *err.
func closeSink(out sink.Sink, err *error) {
	if cerr := out.Close(); cerr != nil {
		*err = errors.Join(*err, fmt.Errorf("closing output streams: %w", cerr))
	}
}
