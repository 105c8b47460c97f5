package vfs

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// The pklsense:// wrapper scheme gives editors a single addressable form for
// files that have no on-disk path (stdlib modules, fetched https modules).
// Resolution always works on the effective URI.
const (
	wrapperStdlibPrefix = "pklsense://stdlib/"
	wrapperHTTPSPrefix  = "pklsense://https/"
)

// NormalizeURI rewrites wrapper URIs to their effective form and leaves
// everything else untouched.
func NormalizeURI(uri string) string {
	switch {
	case strings.HasPrefix(uri, wrapperStdlibPrefix):
		name := strings.TrimPrefix(uri, wrapperStdlibPrefix)
		name = strings.TrimSuffix(name, ".pkl")
		return "pkl:" + name
	case strings.HasPrefix(uri, wrapperHTTPSPrefix):
		if dec, err := url.PathUnescape(strings.TrimPrefix(uri, wrapperHTTPSPrefix)); err == nil {
			return dec
		}
	}
	return uri
}

// SyntheticURI is the inverse of NormalizeURI for origins that need the
// wrapper form; local files pass through.
func SyntheticURI(uri string) string {
	switch {
	case strings.HasPrefix(uri, "pkl:"):
		return wrapperStdlibPrefix + strings.TrimPrefix(uri, "pkl:") + ".pkl"
	case strings.HasPrefix(uri, "https://"):
		return wrapperHTTPSPrefix + url.PathEscape(uri)
	}
	return uri
}

func PathToURI(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

func URIToPath(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}

// JoinURI resolves a relative reference against a base URI, scheme-agnostic,
// so relative imports work the same for file: and https: containers.
func JoinURI(base, rel string) (string, bool) {
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	r, err := url.Parse(rel)
	if err != nil {
		return "", false
	}
	return b.ResolveReference(r).String(), true
}

// ParentURI returns the URI of the containing directory, without a trailing
// slash. The root directory is its own parent.
func ParentURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	u.Path = path.Dir(u.Path)
	return u.String()
}

// BaseName returns the final path segment of a URI.
func BaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Path == "" {
		if i := strings.LastIndex(uri, "/"); i >= 0 {
			return uri[i+1:]
		}
		return uri
	}
	return path.Base(u.Path)
}
