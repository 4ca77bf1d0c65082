package iam

// NamespaceSpec declares the protected surface of one portal area. Endpoint
// names become fine-grained permission codes of the form "{ns}.{endpoint}";
// every namespace additionally carries a coarse "{ns}.access" code.
type NamespaceSpec struct {
	Namespace string
	Title     string
	Endpoints []string
	// CoarseOnly namespaces are guarded by the access code alone. Used for
	// areas whose routes are all parameterized and carry no stable endpoint
	// names of their own.
	CoarseOnly bool
}

// Manifest is the declared permission surface. Startup reconciliation ensures
// every code listed here and reports registry rows this list no longer names.
var Manifest = []NamespaceSpec{
	{
		Namespace: "core",
		Title:     "Dashboard",
		Endpoints: []string{"dashboard"},
	},
	{
		Namespace: "regions",
		Title:     "Regions",
		Endpoints: []string{"index", "create", "update", "deactivate", "activate"},
	},
	{
		Namespace: "organizations",
		Title:     "Organizations",
		Endpoints: []string{"index", "detail", "approve", "reject", "suspend", "roster"},
	},
	{
		Namespace: "individuals",
		Title:     "Individuals",
		Endpoints: []string{"index", "detail", "create", "update"},
	},
	{
		Namespace: "trainers",
		Title:     "Trainers",
		Endpoints: []string{"index", "assign"},
	},
	{
		Namespace: "courses",
		Title:     "Courses",
		Endpoints: []string{"index", "detail", "create", "update", "publish", "enroll", "cancel", "org_request", "org_request_process"},
	},
	{
		Namespace: "attendance",
		Title:     "Attendance",
		Endpoints: []string{"confirm"},
	},
	{
		Namespace: "certificates",
		Title:     "Certificates",
		Endpoints: []string{"index", "detail", "issue", "download"},
	},
	{
		Namespace: "support",
		Title:     "Support",
		Endpoints: []string{"index", "detail", "create", "reply", "assign", "status", "escalate"},
	},
	{
		Namespace: "sysadmin",
		Title:     "System Administration",
		Endpoints: []string{"dashboard", "users", "users_edit", "users_perm", "roles", "roles_toggle", "requests", "requests_decide", "audit"},
	},
}

// ManifestCodes flattens the manifest into the full set of permission codes.
func ManifestCodes() []string {
	var codes []string
	for _, ns := range Manifest {
		codes = append(codes, ns.Namespace+".access")
		for _, ep := range ns.Endpoints {
			codes = append(codes, ns.Namespace+"."+ep)
		}
	}
	return codes
}

// coarseOnlyNamespaces indexes the manifest for the middleware's fallback
// when no endpoint name is derivable from a route.
func coarseOnlyNamespaces() map[string]bool {
	m := make(map[string]bool, len(Manifest))
	for _, ns := range Manifest {
		if ns.CoarseOnly {
			m[ns.Namespace] = true
		}
	}
	return m
}
