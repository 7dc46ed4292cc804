package cnst

const (
	AppName     = "tokenbridge"
	CommandName = "tokenbridge"
)

const (
	TokenBridgeYaml = "tokenbridge.yaml"
)
