package store

import (
	"context"
	"log"

	"chatrelay/config"
)

// Select binds the process to a storage backend. When a database URL is
// configured the durable backend is probed once under cfg.StoreProbeTimeout;
// any failure falls back to the volatile in-memory backend so the relay
// stays available without a reachable store. Select is called exactly once
// at startup and the returned handle is passed to every component that
// needs storage; tests construct their own stores instead.
func Select(ctx context.Context, cfg *config.Config) Store {
	if cfg.DatabaseURL == "" {
		log.Printf("WARN: DATABASE_URL is not set, using in-memory session store; sessions will not survive a restart")
		return NewMemoryStore(cfg.SessionTTL)
	}

	s, err := NewSQLiteStore(cfg.DatabaseURL, cfg.SessionTTL)
	if err == nil {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.StoreProbeTimeout)
		defer cancel()
		if pingErr := s.Ping(probeCtx); pingErr == nil {
			log.Printf("Using SQLite session store at %s", cfg.DatabaseURL)
			return s
		} else {
			err = pingErr
			s.Close()
		}
	}

	log.Printf("WARN: durable store unavailable (%v), falling back to in-memory session store; sessions will not survive a restart", err)
	return NewMemoryStore(cfg.SessionTTL)
}
