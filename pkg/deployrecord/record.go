package deployrecord

// Status values for deploy records.
const (
	StatusDeployed   = "deployed"
	StatusRolledBack = "rolled_back"
	StatusFailed     = "failed"
)

// Record describes the terminal state of one deploy run for the
// artifact metadata API.
type Record struct {
	Name                string `json:"name"`
	Digest              string `json:"digest"`
	Version             string `json:"version"`
	LogicalEnvironment  string `json:"logical_environment"`
	PhysicalEnvironment string `json:"physical_environment"`
	Cluster             string `json:"cluster"`
	Status              string `json:"status"`
	DeploymentName      string `json:"deployment_name"`
	Namespace           string `json:"namespace"`
	Revision            string `json:"revision,omitempty"`
}

// Valid reports whether the record carries a known status.
func (r *Record) Valid() bool {
	switch r.Status {
	case StatusDeployed, StatusRolledBack, StatusFailed:
		return true
	}
	return false
}
