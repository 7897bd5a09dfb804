package updater

import "errors"

var errIdentityChanged = errors.New("merge patch must not change kind, namespace or name")
