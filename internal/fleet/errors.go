package fleet

import "errors"

var errMissingUsage = errors.New("node metrics has no usage field")
