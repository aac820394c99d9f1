package migrate

import "github.com/park285/goban-state/internal/prefs"

// Device suffixes of keys whose value differs per device class.
const (
	SuffixPhone = "~iphone"
	SuffixPad   = "~ipad"
)

var deviceSuffixes = []string{SuffixPhone, SuffixPad}

// removeKeys deletes keys from d. Missing keys are fine.
func removeKeys(d prefs.Dict, keys ...string) {
	for _, k := range keys {
		delete(d, k)
	}
}

// renameKey moves the value under from to to. A value already stored under
// to is kept and the old one dropped.
func renameKey(d prefs.Dict, from, to string) {
	v, ok := d[from]
	if !ok {
		return
	}
	delete(d, from)
	if !d.Has(to) {
		d[to] = v
	}
}

// fanOut replaces the device-agnostic key with one key per suffix. The
// agnostic value survives under upgradeSuffix, or is dropped when
// upgradeSuffix is empty. Variants still missing afterwards are copied from
// factory; variants already present are left alone.
func fanOut(d, factory prefs.Dict, key string, suffixes []string, upgradeSuffix string) {
	if v, ok := d[key]; ok {
		delete(d, key)
		if upgradeSuffix != "" && !d.Has(key+upgradeSuffix) {
			d[key+upgradeSuffix] = v
		}
	}
	for _, s := range suffixes {
		k := key + s
		if d.Has(k) {
			continue
		}
		if fv, ok := factory[k]; ok {
			d[k] = prefs.CloneValue(fv)
		}
	}
}

// subDicts returns the sub-dictionary under key in both d and factory. The
// factory side is empty when the defaults lack it.
func subDicts(d, factory prefs.Dict, key string) (prefs.Dict, prefs.Dict, bool) {
	sub, ok := d.Sub(key)
	if !ok {
		return nil, nil, false
	}
	fsub, ok := factory.Sub(key)
	if !ok {
		fsub = prefs.Dict{}
	}
	return sub, fsub, true
}
