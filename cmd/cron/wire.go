//go:build wireinject
// +build wireinject

package main

import (
	"xinyuan_tech/clinic-billing-service/internal/biz"
	"xinyuan_tech/clinic-billing-service/internal/conf"
	"xinyuan_tech/clinic-billing-service/internal/data"

	"github.com/google/wire"
)

// wireApp builds the cron application.
func wireApp(*conf.Bootstrap) (*CronApp, func(), error) {
	panic(wire.Build(
		wire.FieldsOf(new(*conf.Bootstrap), "Log"),
		newLogger,
		data.ProviderSet,
		biz.ProviderSet,
		wire.Struct(new(CronApp), "*"),
	))
}
