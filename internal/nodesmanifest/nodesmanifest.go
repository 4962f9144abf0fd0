// Package nodesmanifest reconciles the constellation's registry against
// an optional TOML nodes manifest, pre-registering any enabled entry not
// already present (spec.md §4.7).
package nodesmanifest

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/master-of-zen/ferris-swarm/internal/registry"
	"github.com/master-of-zen/ferris-swarm/internal/settingsfile"
)

// Reconciler periodically re-reads a nodes manifest and registers any
// enabled, not-yet-present node. It is purely additive: it never deletes
// or modifies existing registry entries.
type Reconciler struct {
	manifestPath string
	reg          *registry.Registry
	log          *logrus.Logger
}

// NewReconciler builds a Reconciler for manifestPath. An empty
// manifestPath makes every reconcile pass a no-op.
func NewReconciler(manifestPath string, reg *registry.Registry, log *logrus.Logger) *Reconciler {
	return &Reconciler{manifestPath: manifestPath, reg: reg, log: log}
}

// ReconcileOnce re-reads the manifest and registers any missing enabled
// node. Returns the number of nodes newly registered.
func (r *Reconciler) ReconcileOnce() (int, error) {
	manifest, err := settingsfile.LoadManifest(r.manifestPath)
	if err != nil {
		return 0, err
	}
	if !manifest.Constellation.AutoRegister {
		return 0, nil
	}

	registered := 0
	for _, node := range manifest.Nodes {
		if !node.Enabled {
			continue
		}
		if r.reg.HasNodeWithAddress(node.Address) {
			continue
		}
		r.reg.RegisterNode(node.Address, node.Capabilities)
		r.log.WithFields(logrus.Fields{"name": node.Name, "address": node.Address}).Info("auto-registered node from manifest")
		registered++
	}
	return registered, nil
}

// Run reconciles immediately, then every interval, until stop is closed
// (spec.md §4.7: "on startup and then every 60s").
func (r *Reconciler) Run(interval time.Duration, stop <-chan struct{}) {
	if _, err := r.ReconcileOnce(); err != nil {
		r.log.WithError(err).Warn("initial nodes-manifest reconcile failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.ReconcileOnce(); err != nil {
				r.log.WithError(err).Warn("nodes-manifest reconcile failed")
			}
		case <-stop:
			return
		}
	}
}
