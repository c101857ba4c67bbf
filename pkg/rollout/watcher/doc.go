// Package watcher hot-reloads a rollout document from disk.
//
// The watcher listens on the document's directory with fsnotify, waits for
// writes to settle, then decodes the file with rollout.LoadFile and installs
// it on a Target (normally a *phase.Manager). Invalid documents never replace
// the active configuration.
//
//	w := watcher.New("rollout.yaml", manager,
//		watcher.WithLogger(log),
//		watcher.WithCheck(func(cfg *rollout.Config) error {
//			reg, err := feature.NewRegistry(cfg.Flags)
//			if err != nil {
//				return err
//			}
//			return reg.CheckGroups(cfg)
//		}),
//	)
//	if err := w.Start(ctx); err != nil {
//		return err
//	}
//	defer w.Stop()
package watcher
