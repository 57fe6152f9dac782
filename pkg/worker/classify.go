package worker

import (
	"reelcache/pkg/utils/regex"
	"regexp"
)

// Class is the partition a request belongs to.
type Class int

const (
	ClassUncached Class = iota
	ClassShell
	ClassMedia
)

func (c Class) String() string {
	switch c {
	case ClassShell:
		return "shell"
	case ClassMedia:
		return "media"
	default:
		return "uncached"
	}
}

// Strategy names the preferred source for a class.
func (c Class) Strategy() string {
	switch c {
	case ClassMedia:
		return "cache-first"
	case ClassShell:
		return "network-first"
	default:
		return "pass-through"
	}
}

// Classifier maps a URL path to a class. Rules are checked in order and the
// first match wins: media extensions, then shell extensions or the root
// document, then everything else.
type Classifier struct {
	media *regexp.Regexp
	shell *regexp.Regexp
}

func NewClassifier(mediaExtensions, shellExtensions []string) *Classifier {
	return &Classifier{
		media: regex.ExtensionPattern(mediaExtensions),
		shell: regex.ExtensionPattern(shellExtensions),
	}
}

func (c *Classifier) Classify(path string) Class {
	if c.media != nil && c.media.MatchString(path) {
		return ClassMedia
	}
	if path == "/" || (c.shell != nil && c.shell.MatchString(path)) {
		return ClassShell
	}
	return ClassUncached
}
