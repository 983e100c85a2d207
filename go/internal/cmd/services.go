package main

import (
	"github.com/domainhooks/hooks/go/internal/bootstrap"
	"github.com/domainhooks/hooks/go/internal/domains"
	"github.com/domainhooks/hooks/go/internal/events"
	"github.com/domainhooks/hooks/go/internal/hooks"
	"github.com/domainhooks/hooks/go/internal/schemas"
)

type Services struct {
	Schemas *schemas.Service
	Domains *domains.Service
	Hooks   *hooks.Service
	Events  *events.Service
}

// App layer → Service layer
func setupServices(apps *bootstrap.Apps) *Services {
	return &Services{
		Schemas: schemas.NewService(apps.Schemas),
		Domains: domains.NewService(apps.Domains),
		Hooks:   hooks.NewService(apps.Hooks),
		Events:  events.NewService(apps.Events),
	}
}
