// Package watcher reports changes to IIIF JSON documents in a directory.
//
// fsnotify is used where available, with polling as the fallback for file
// systems that do not deliver events (network mounts, some container
// volumes). Events are debounced per file and delivered in batches.
//
// Usage:
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go w.Start(ctx, "/srv/iiif/incoming")
//	for batch := range w.Events() {
//	    for _, event := range batch {
//	        // event.Path is absolute
//	    }
//	}
package watcher
