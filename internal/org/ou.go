package org

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
)

// OUManager manages the organizationalUnit entries the subtree layout hangs
// off.
type OUManager struct {
	client directory.Client
	cfg    *config.Config
	log    zerolog.Logger
}

func NewOUManager(client directory.Client, cfg *config.Config, log zerolog.Logger) *OUManager {
	return &OUManager{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("manager", "ou").Logger(),
	}
}

// Exists reports whether an entry is present at dn.
func (m *OUManager) Exists(ctx context.Context, dn string) (bool, error) {
	_, err := getEntry(ctx, m.client, dn)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Ensure creates the organizationalUnit at dn if it does not exist yet. The
// ou attribute is taken from the DN's first RDN value. Safe to call
// repeatedly.
func (m *OUManager) Ensure(ctx context.Context, dn string) error {
	name := leafValue(dn)
	if name == "" {
		return directory.Validation("ensure_ou", "cannot derive ou name from DN "+dn)
	}

	err := m.client.Add(ctx, &directory.AddRequest{
		DN: dn,
		Attributes: map[string][]string{
			"objectClass": {"organizationalUnit"},
			"ou":          {name},
		},
	})
	if err != nil {
		if errors.Is(err, directory.ErrAlreadyExists) {
			return nil
		}
		return err
	}
	m.log.Info().Str("dn", dn).Msg("created organizational unit")
	return nil
}
