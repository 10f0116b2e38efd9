// Package iiif models IIIF Presentation resources independently of API
// version.
//
// Parse detects whether a document is Presentation 2 (@id, @type,
// sequences, canvases, images) or Presentation 3 (id, type, items, body)
// and returns a Node whose Kind is resolved once. Traversal code switches on
// Kind instead of probing optional keys.
//
// The package also resolves first canvases, thumbnails and primary images,
// and fetches image service descriptors (info.json) through a rate-limited,
// cached and circuit-broken ServiceFetcher.
package iiif
