package protocol

import "strings"

// DeepLink is a location fragment split into its cluster and service parts.
type DeepLink struct {
	// Normalized is the fragment without "#", surrounding whitespace, and
	// one leading and one trailing slash.
	Normalized string
	ClusterID  string
	ServiceID  string
}

// ParseFragment parses "#<clusterId>" or "#<clusterId>/<serviceId>". The
// split happens on the first "/", so the service part may itself contain
// slashes (e.g. "prod/lock/name"). ok is false for an empty fragment.
func ParseFragment(fragment string) (DeepLink, bool) {
	f := strings.TrimSpace(strings.Replace(fragment, "#", "", 1))
	if f == "" {
		return DeepLink{}, false
	}
	f = strings.TrimPrefix(f, "/")
	f = strings.TrimSuffix(f, "/")

	link := DeepLink{Normalized: f}
	if cluster, service, found := strings.Cut(f, "/"); found {
		link.ClusterID = cluster
		link.ServiceID = service
	} else {
		link.ClusterID = f
	}
	return link, link.ClusterID != "" || link.ServiceID != ""
}

// FormatFragment renders the fragment for a cluster and an optional service
// or coordination entity.
func FormatFragment(clusterID, sub string) string {
	if sub == "" {
		return clusterID
	}
	return clusterID + "/" + sub
}
