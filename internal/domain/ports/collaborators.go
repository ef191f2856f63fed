package ports

import "context"

// LinkResolver converts a provider-assigned candidate identifier into a
// direct download URL.
type LinkResolver interface {
	Resolve(ctx context.Context, ident string) (string, error)
}

// DownloadPusher hands one or more direct links to a remote download
// manager as a single logical package and returns its package id.
type DownloadPusher interface {
	Push(ctx context.Context, links []string, packageName string) (string, error)
}
