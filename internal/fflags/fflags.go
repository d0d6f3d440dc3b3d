// Package fflags exposes feature toggles read from the environment.
package fflags

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/partup/partup/internal/util"
	"go.uber.org/zap"
)

const (
	// EmailInvites gates networks.invite_by_email.
	EmailInvites = "email-invites"
	// NetworkRemoval gates networks.remove.
	NetworkRemoval = "network-removal"
)

var ErrUnknownFlag = errors.New("unknown feature flag")

type FFlag struct {
	env          string
	defaultValue bool
}

var flags = map[string]FFlag{
	EmailInvites:   {"PARTUP_FFLAG_EMAIL_INVITES", true},
	NetworkRemoval: {"PARTUP_FFLAG_NETWORK_REMOVAL", true},
}

type FFlags struct {
	logger    *zap.SugaredLogger
	mu        sync.RWMutex
	overrides map[string]bool
}

func NewFFlags(logger *zap.SugaredLogger) *FFlags {
	return &FFlags{
		logger:    logger,
		overrides: map[string]bool{},
	}
}

// Names returns the defined flag names, sorted.
func Names() []string {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *FFlags) value(name string, fflag FFlag) bool {
	f.mu.RLock()
	v, ok := f.overrides[name]
	f.mu.RUnlock()
	if ok {
		return v
	}
	return util.GetenvBool(fflag.env, fflag.defaultValue)
}

// ListFlags returns every defined flag and whether it is enabled.
func (f *FFlags) ListFlags() map[string]bool {
	result := map[string]bool{}
	for name, fflag := range flags {
		result[name] = f.value(name, fflag)
	}
	return result
}

// GetFlag reports whether the named feature is enabled.
func (f *FFlags) GetFlag(name string) (bool, error) {
	fflag, ok := flags[name]
	if !ok {
		f.logger.Debugw("invalid feature flag name", "flag", name)
		return false, fmt.Errorf("%w: %s", ErrUnknownFlag, name)
	}
	return f.value(name, fflag), nil
}

// Enabled is GetFlag for callers that treat unknown flags as disabled.
func (f *FFlags) Enabled(name string) bool {
	v, _ := f.GetFlag(name)
	return v
}

// Set pins a flag value, taking precedence over the environment.
func (f *FFlags) Set(name string, enabled bool) error {
	if _, ok := flags[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlag, name)
	}
	f.mu.Lock()
	f.overrides[name] = enabled
	f.mu.Unlock()
	return nil
}
