// Package ident derives deterministic resource identifiers from resource
// URLs. Independently running services that hold the same href compute the
// same UUID, so resource identity needs no shared counter or coordination.
package ident

import (
	"net/url"
	"strings"

	"github.com/energyos/espi-authz/internal/common/errorx"
	"github.com/google/uuid"
)

// Namespace is the fixed UUID namespace hashed together with the href.
// RFC 4122 name-based UUIDs over URLs use the standard URL namespace.
var Namespace = uuid.NameSpaceURL

// GenerateID computes the version 5 UUID of an absolute resource URL:
// SHA1(namespace ++ href) with the RFC 4122 version and variant bits set.
// Relative references are rejected before any hashing happens.
func GenerateID(href string) (uuid.UUID, error) {
	if err := validateHref(href); err != nil {
		return uuid.Nil, err
	}
	return uuid.NewSHA1(Namespace, []byte(href)), nil
}

func validateHref(href string) error {
	if href == "" {
		return errorx.ErrValidation.WithDescription("href is empty")
	}
	if strings.HasPrefix(href, "/") || strings.HasPrefix(href, "./") || strings.HasPrefix(href, "../") {
		return errorx.ErrValidation.WithDescription("href %q is not absolute", href)
	}
	u, err := url.Parse(href)
	if err != nil {
		return errorx.ErrValidation.WithDescription("href %q does not parse: %v", href, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return errorx.ErrValidation.WithDescription("href %q must carry a scheme and host", href)
	}
	return nil
}
