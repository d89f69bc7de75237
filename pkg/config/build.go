package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/saslgate/internal/logger"
	"github.com/marmos91/saslgate/pkg/diag"
	"github.com/marmos91/saslgate/pkg/directory"
	"github.com/marmos91/saslgate/pkg/metrics"
	"github.com/marmos91/saslgate/pkg/provider"
	"github.com/marmos91/saslgate/pkg/realm"
	"github.com/marmos91/saslgate/pkg/realm/kerberos"
	"github.com/marmos91/saslgate/pkg/realm/sqlrealm"
	"github.com/marmos91/saslgate/pkg/sasl"
)

// BuildFactory assembles the negotiation chain described by cfg over the
// mechanisms installed in reg.
//
// Layers, innermost first:
//  1. the registry's base factory for the configured side
//  2. property layers in configuration order (earlier layers win ties)
//  3. the allow filter, then the deny filter
//  4. forced protocol and server name
//  5. observation, recording into m (nil disables metrics)
func BuildFactory(cfg *NegotiationConfig, reg *provider.Registry, m metrics.ExchangeMetrics) (sasl.MechanismFactory, error) {
	side, ok := sasl.ParseSide(cfg.Side)
	if !ok {
		return nil, fmt.Errorf("negotiation.side: unknown side %q", cfg.Side)
	}
	layers, err := PropertyLayers(cfg.PropertyLayers)
	if err != nil {
		return nil, err
	}

	var f sasl.MechanismFactory = reg.Factory(side)
	for _, props := range layers {
		f = sasl.WithProperties(f, props)
	}
	if len(cfg.Allow) > 0 {
		f = sasl.WithFilter(f, sasl.AllowOnly(cfg.Allow...))
	}
	if len(cfg.Deny) > 0 {
		f = sasl.WithFilter(f, sasl.Exclude(cfg.Deny...))
	}
	if cfg.Protocol != "" {
		f = sasl.WithProtocol(f, cfg.Protocol)
	}
	if cfg.ServerName != "" {
		f = sasl.WithServerName(f, cfg.ServerName)
	}
	return sasl.WithObservation(f, m), nil
}

// Realm is a resolver built from configuration together with the
// resources it holds.
type Realm struct {
	*realm.Resolver
	closers []func() error
}

// Close releases database connections and stops file watchers.
func (r *Realm) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// BuildRealm opens the realm selected by cfg.Type. ctx bounds background
// work such as file watching; cancel it or call Close to stop.
func BuildRealm(ctx context.Context, cfg *Config, m metrics.ExchangeMetrics) (*Realm, error) {
	rc := &cfg.Realm
	out := &Realm{Resolver: &realm.Resolver{AllowAnonymous: rc.AllowAnonymous, Metrics: m}}
	fail := func(err error) (*Realm, error) {
		_ = out.Close()
		return nil, err
	}

	switch rc.Type {
	case RealmFile:
		fr, err := realm.LoadFileRealm(rc.File.Path)
		if err != nil {
			return fail(err)
		}
		if rc.File.Watch {
			watchCtx, cancel := context.WithCancel(ctx)
			out.closers = append(out.closers, func() error { cancel(); return nil })
			if err := fr.Watch(watchCtx, nil); err != nil {
				return fail(err)
			}
		}
		out.Realm, out.Authorizer = fr, fr

	case RealmLDAP:
		p, err := directory.NewLDAPProvider(rc.LDAP)
		if err != nil {
			return fail(err)
		}
		if err := p.PreloadTrust(cfg.Trust); err != nil {
			return fail(fmt.Errorf("load directory trust material: %w", err))
		}
		out.Realm = realm.NewDirectoryRealm(p, cfg.Trust)

	case RealmSQL:
		store, err := sqlrealm.Open(&rc.SQL)
		if err != nil {
			return fail(err)
		}
		out.closers = append(out.closers, store.Close)
		out.Realm, out.Authorizer = store, store

	case RealmKerberos:
		kr, err := kerberos.New(rc.Kerberos)
		if err != nil {
			return fail(err)
		}
		out.Realm = kr

	case RealmToken:
		if rc.Token.Secret == "" {
			return fail(errors.New("realm.token.secret is required for realm type token"))
		}

	default:
		return fail(diag.New(diag.UnknownRealmType, rc.Type))
	}

	if out.Realm != nil {
		out.Realm = realm.WithTimeout(out.Realm, rc.LookupTimeout)
	}
	if rc.Token.Secret != "" {
		tr, err := realm.NewTokenRealm(rc.Token)
		if err != nil {
			return fail(err)
		}
		out.Tokens = tr
	}

	logger.Info("realm ready", logger.Realm(rc.Type), "tokens", out.Tokens != nil, "anonymous", rc.AllowAnonymous)
	return out, nil
}
