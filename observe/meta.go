package observe

// ProbeMeta describes one probe execution against one node.
type ProbeMeta struct {
	Node     string // Node name (required)
	NodeKind string // controller|worker
	Probe    string // Probe kind (required)
	Label    string // Operator-facing label, e.g. "network interfaces"
}

// SpanName returns the span name for this execution.
// Format: probe.exec.<probe>
func (m ProbeMeta) SpanName() string {
	return "probe.exec." + m.Probe
}
