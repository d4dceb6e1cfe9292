package msgs

// Status message types.
const (
	StatusInfo  = 1
	StatusWarn  = 2
	StatusError = 3
)

// StatusMsg is published by the manipulation module on its status topic.
type StatusMsg struct {
	Type       int    `json:"type"`
	ModuleName string `json:"module_name"`
	StatusMsg  string `json:"status_msg"`
}

// ModuleCommand carries a plain string command such as a control module
// name or an initial-pose name.
type ModuleCommand struct {
	Data string `json:"data"`
}
