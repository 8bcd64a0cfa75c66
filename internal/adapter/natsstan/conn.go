// Package natsstan carries catalog events over NATS Streaming so that every
// front instance drops the cache entries another instance made stale.
package natsstan

import (
	"github.com/google/uuid"
	stan "github.com/nats-io/stan.go"
	"github.com/pkg/errors"
)

type Config struct {
	ClusterID string
	ClientID  string
	URL       string
	Subject   string
}

// Connect opens a streaming connection. Client ids must be unique per
// cluster, so an empty ClientID gets a random suffix.
func Connect(cfg Config) (stan.Conn, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "bazaar-front-" + uuid.NewString()[:8]
	}
	sc, err := stan.Connect(cfg.ClusterID, clientID, stan.NatsURL(cfg.URL))
	if err != nil {
		return nil, errors.Wrapf(err, "stan connect %s as %s", cfg.URL, clientID)
	}
	return sc, nil
}
