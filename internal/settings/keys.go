package settings

// Keys read by the render pipeline and built-in templates.
var (
	KeyOutputFiletype     = K("APP.FILES", "Output.Filetype")
	KeySaveArtistName     = K("APP.FILES", "Save.Artist.Name")
	KeyOverwriteDuplicate = K("APP.FILES", "Overwrite.Duplicate")
	KeySkipFailed         = K("APP.RENDER", "Skip.Failed")
	KeySorting            = K("APP.DATA", "Scryfall.Sorting")
	KeyAscending          = K("APP.DATA", "Scryfall.Ascending")
	KeyDevMode            = K("APP.SYSTEM", "Dev.Mode")
	KeyLanguage           = K("BASE.TEXT", "Language")
	KeyFlavorDivider      = K("BASE.TEXT", "Flavor.Divider")
	KeyNoFlavorText       = K("BASE.TEXT", "No.Flavor.Text")
	KeyNoReminderText     = K("BASE.TEXT", "No.Reminder.Text")
	KeyTrueCollectorInfo  = K("BASE.TEXT", "True.Collector.Info")
	KeySymbolMode         = K("BASE.SYMBOLS", "Symbol.Mode")
	KeyDefaultSymbol      = K("BASE.SYMBOLS", "Default.Symbol")
	KeyForceDefaultSymbol = K("BASE.SYMBOLS", "Force.Default.Symbol")
	KeySymbolStroke       = K("BASE.SYMBOLS", "Symbol.Stroke.Size")
	KeyEnableWatermark    = K("BASE.SYMBOLS", "Enable.Watermark")
	KeyManualEdit         = K("BASE.TEMPLATES", "Manual.Edit")
	KeyBorderColor        = K("BASE.TEMPLATES", "Border.Color")
	KeyRenderSnow         = K("BASE.TEMPLATES", "Render.Snow")
	KeyRenderMiracle      = K("BASE.TEMPLATES", "Render.Miracle")
	KeyRenderBasic        = K("BASE.TEMPLATES", "Render.Basic")
)
