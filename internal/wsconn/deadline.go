package wsconn

import "time"

// closeWriteTimeout bounds how long a close-control-frame write may
// block a session's teardown path.
const closeWriteTimeout = 2 * time.Second

func timeNowPlus() time.Time {
	return time.Now().Add(closeWriteTimeout)
}
