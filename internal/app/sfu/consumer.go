package sfu

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

type Consumer struct {
	media    core.MediaConsumer
	owner    domain.UserID
	producer *Producer
	paused   bool
}

func (c *Consumer) ID() string           { return c.media.ID() }
func (c *Consumer) Owner() domain.UserID { return c.owner }
func (c *Consumer) ProducerID() string   { return c.producer.ID() }

func (c *Consumer) Params() core.ConsumerParams {
	return core.ConsumerParams{
		ID:            c.ID(),
		ProducerID:    c.ProducerID(),
		Kind:          c.media.Kind(),
		RTPParameters: c.media.RTPParameters(),
		Paused:        c.paused,
	}
}
