package demux

import (
	"slices"
	"strings"
)

// Tags is an ordered list of metadata key/value pairs. Keys compare
// case-insensitively.
type Tags struct {
	keys   []string
	values []string
}

// Set stores value under key, replacing an existing value in place.
func (t *Tags) Set(key, value string) {
	for i, k := range t.keys {
		if strings.EqualFold(k, key) {
			t.values[i] = value
			return
		}
	}
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// Get returns the value stored under key.
func (t *Tags) Get(key string) (string, bool) {
	for i, k := range t.keys {
		if strings.EqualFold(k, key) {
			return t.values[i], true
		}
	}
	return "", false
}

// Len returns the number of pairs.
func (t *Tags) Len() int {
	return len(t.keys)
}

// At returns the i'th pair.
func (t *Tags) At(i int) (key, value string) {
	return t.keys[i], t.values[i]
}

// Clone returns an independent copy.
func (t *Tags) Clone() *Tags {
	return &Tags{keys: slices.Clone(t.keys), values: slices.Clone(t.values)}
}

// InfoAdd sets a metadata tag on the demuxer. It reports whether anything
// changed; a changed value is logged.
func (d *Demuxer) InfoAdd(key, value string) bool {
	if old, ok := d.metadata.Get(key); ok {
		if old == value {
			return false
		}
		d.log.Info("metadata changed", "key", key, "old", old, "new", value)
	}
	d.metadata.Set(key, value)
	return true
}

// InfoGet returns the metadata value stored under key.
func (d *Demuxer) InfoGet(key string) (string, bool) {
	return d.metadata.Get(key)
}

// Metadata returns the demuxer's metadata tags.
func (d *Demuxer) Metadata() *Tags {
	return d.metadata
}

// InfoUpdate asks the plugin to refresh metadata, then merges the tags the
// stream reports.
func (d *Demuxer) InfoUpdate() {
	d.Control(CtrlUpdateInfo, nil)
	for _, tag := range d.streamMetadata() {
		d.InfoAdd(tag.Key, tag.Value)
	}
}

// InfoPrint logs every metadata tag at info level.
func (d *Demuxer) InfoPrint() {
	if d.metadata.Len() == 0 {
		return
	}
	args := make([]any, 0, 2*d.metadata.Len())
	for i := range d.metadata.Len() {
		k, v := d.metadata.At(i)
		args = append(args, k, v)
	}
	d.log.Info("clip info", args...)
}
