package context

import context2 "context"

// Service is a unit managed by a Context.
// Configure runs for every service before any Start is called.
type Service interface {
	Id() string
	Configure(ctx *Context) error
	Start() error
	Shutdown()
}

// DefaultService gives embedding services access to the owning Context and
// no-op lifecycle hooks.
type DefaultService struct {
	ctx *Context
}

func (svc *DefaultService) Configure(ctx *Context) error {
	svc.ctx = ctx
	return nil
}

func (svc *DefaultService) Start() error {
	return nil
}

func (svc *DefaultService) Shutdown() {}

// Service looks up a sibling service by id.
func (svc *DefaultService) Service(id string) Service {
	if svc.ctx == nil {
		return nil
	}
	return svc.ctx.Service(id)
}

// Base returns the owning Context's base context, or a background context
// when the service has not been configured.
func (svc *DefaultService) Base() context2.Context {
	if svc.ctx == nil {
		return context2.Background()
	}
	return svc.ctx.Base()
}
