package rediskey

import "fmt"

const (
	SequencePrefix        = "seq"
	LicenceSequencePrefix = "seq:licence"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildLicenceSequenceKey returns "seq:licence:{year}"
func BuildLicenceSequenceKey(year int) string {
	return NamespaceKey(LicenceSequencePrefix, fmt.Sprintf("%04d", year))
}
