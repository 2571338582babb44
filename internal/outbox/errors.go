package outbox

import "errors"

var errMalformed = errors.New("outbox entry has no payload for its kind")
