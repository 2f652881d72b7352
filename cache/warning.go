package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// The three fixed warning messages, carried over verbatim in meaning.
const queueFullTemplate = `WARNING: You seem to be downloading a lot!

To protect you from accidentally downloading all of
the internet at once, we've implemented a queue
system which means that you can only request up to
%d downloads at once.  If you ask
for more than this, the first %d
are downloaded and this message is temporarily
returned.

To get the files you want, simply wait a few
minutes and retry by which time you should be able
to get a few more of them.

Apologies for the inconvenience
`

const timeoutMessage = `WARNING: The download timed out

We couldn't find this file in our cache so tried
to download it.  Unfortunately the download timed
out.  Please try again later
`

const errorMessage = `WARNING: There was a problem downloading this file

Please try again later
`

// warningFiles holds the on-disk paths of the three pre-materialized
// warning files, content-addressed by the hash of their message.
type warningFiles struct {
	queueFull string
	timeout   string
	errorFile string
}

// newWarningFiles creates (or reuses, if already present from a prior run)
// the three warning files under <root>/tmp.
func newWarningFiles(rootDir string, maxQueue int) (*warningFiles, error) {
	queueMessage := fmt.Sprintf(queueFullTemplate, maxQueue, maxQueue)

	queuePath, err := writeWarningFile(rootDir, "download_queue_warning", queueMessage)
	if err != nil {
		return nil, err
	}
	timeoutPath, err := writeWarningFile(rootDir, "download_timeout_warning", timeoutMessage)
	if err != nil {
		return nil, err
	}
	errorPath, err := writeWarningFile(rootDir, "download_error", errorMessage)
	if err != nil {
		return nil, err
	}

	return &warningFiles{queueFull: queuePath, timeout: timeoutPath, errorFile: errorPath}, nil
}

func writeWarningFile(rootDir, prefix, message string) (string, error) {
	digest := md5.Sum([]byte(message))
	name := fmt.Sprintf("%s_%s.tmp", prefix, hex.EncodeToString(digest[:]))
	path := filepath.Join(rootDir, "tmp", name)

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(message), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
