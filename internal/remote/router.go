package remote

import (
	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
	"github.com/icco/oscmidi/internal/scheduler"
)

// Handler receives decoded commands.
type Handler interface {
	HandlePlay(p scheduler.Play)
	HandleCancel(c scheduler.Cancel)
	HandleSync()
}

// Router is an osc.Dispatcher that decodes messages for a Handler.
type Router struct {
	handler Handler
	logger  *log.Logger
}

// NewRouter routes to h.
func NewRouter(h Handler, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{handler: h, logger: logger.WithPrefix("osc")}
}

// Dispatch routes a message, or every message of a bundle in order.
func (r *Router) Dispatch(packet osc.Packet) {
	switch p := packet.(type) {
	case *osc.Message:
		r.route(p)
	case *osc.Bundle:
		for _, m := range p.Messages {
			r.route(m)
		}
		for _, b := range p.Bundles {
			r.Dispatch(b)
		}
	default:
		r.logger.Warn("unknown packet", "packet", packet)
	}
}

func (r *Router) route(msg *osc.Message) {
	r.logger.Debug("message", "address", msg.Address, "arguments", msg.Arguments)

	switch msg.Address {
	case AddressPlay:
		p, err := DecodePlay(msg)
		if err != nil {
			r.logger.Warn("dropping play", "err", err)
			return
		}
		r.handler.HandlePlay(p)
	case AddressCancel:
		c, err := DecodeCancel(msg)
		if err != nil {
			r.logger.Warn("dropping cancel", "err", err)
			return
		}
		r.handler.HandleCancel(c)
	case AddressSync:
		r.logger.Info("sync action triggered")
		r.handler.HandleSync()
	case AddressAugment:
		r.logger.Warn("augment action is yet to be implemented")
	default:
		r.logger.Warn("no behaviour defined for OSC path", "address", msg.Address)
	}
}
