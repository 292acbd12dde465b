package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeRelayTXT creates the TXT records a relay advertises.
func EncodeRelayTXT(info *RelayInfo) TXTRecordMap {
	txt := make(TXTRecordMap)
	if info.Path != "" && info.Path != "/" {
		txt[TXTKeyPath] = info.Path
	}
	if info.TLS {
		txt[TXTKeyTLS] = "1"
	}
	if info.Protocol != "" {
		txt[TXTKeyProtocol] = info.Protocol
	}
	return txt
}

// DecodeRelayTXT applies TXT records to e. Unknown keys are ignored.
func DecodeRelayTXT(txt TXTRecordMap, e *RelayEndpoint) {
	e.Path = txt[TXTKeyPath]
	if e.Path != "" && !strings.HasPrefix(e.Path, "/") {
		e.Path = "/" + e.Path
	}
	switch strings.ToLower(txt[TXTKeyTLS]) {
	case "1", "true", "yes":
		e.TLS = true
	}
	e.Protocol = txt[TXTKeyProtocol]
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings in key order.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
