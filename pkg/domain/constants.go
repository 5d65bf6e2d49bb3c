package domain

// Template types understood by the editor and the routing engine.
// Unknown types are preserved as-is.
const (
	TypeText            = "text"
	TypeButton          = "button"
	TypeList            = "list"
	TypeFlow            = "flow"
	TypeMedia           = "media"
	TypeLocation        = "location"
	TypeRequestLocation = "request-location"
	TypeCTA             = "cta"
	TypeTemplate        = "template"
	TypeDynamic         = "dynamic"
)

// Hook kinds, i.e. the lifecycle point a hook is attached to.
const (
	HookTemplate   = "template"
	HookOnReceive  = "on-receive"
	HookOnGenerate = "on-generate"
	HookValidator  = "validator"
	HookRouter     = "router"
	HookMiddleware = "middleware"
)

// Flow document formats. FormatMulti is the only format written back.
const (
	FormatSingle = "single"
	FormatMulti  = "multi"
)

const (
	// DefaultVersion is assigned to documents that carry no version.
	DefaultVersion = "1.0"

	// DefaultChatbotName names the chatbot created when upgrading a single-flow document.
	DefaultChatbotName = "Default"

	// DefaultConfigName is the name of the configuration record used when none is given.
	DefaultConfigName = "ChatBot Config"
)

// IsKnownType reports whether t is one of the built-in template types.
func IsKnownType(t string) bool {
	switch t {
	case TypeText, TypeButton, TypeList, TypeFlow, TypeMedia, TypeLocation,
		TypeRequestLocation, TypeCTA, TypeTemplate, TypeDynamic:
		return true
	}
	return false
}
