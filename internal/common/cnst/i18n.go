package cnst

const (
	LangEN      = "en"
	LangZH      = "zh"
	LangDefault = LangEN
)

const (
	XLang            = "X-Lang"
	CtxKeyTranslator = "translator"
)
