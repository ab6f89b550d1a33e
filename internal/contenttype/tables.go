package contenttype

// extensionTypes 是固定的扩展名表，不依赖宿主机的 mime.types。
var extensionTypes = map[string]string{
	"js":   JavaScript,
	"mjs":  JavaScript,
	"cjs":  JavaScript,
	"jsx":  "text/jsx",
	"json": "application/json",
	"map":  "application/json",
	"wasm": "application/wasm",
	"xml":  "application/xml",
	"pdf":  "application/pdf",
	"zip":  "application/zip",
	"gz":   "application/gzip",
	"tgz":  "application/gzip",
	"tar":  "application/x-tar",
	"sh":   "application/x-sh",
	"bin":  "application/octet-stream",
	"exe":  "application/octet-stream",
	"node": "application/octet-stream",
	"eot":  "application/vnd.ms-fontobject",

	"css":      "text/css",
	"scss":     "text/x-scss",
	"sass":     "text/x-sass",
	"less":     "text/less",
	"html":     HTML,
	"htm":      HTML,
	"vue":      HTML,
	"md":       "text/markdown",
	"markdown": "text/markdown",
	"txt":      PlainText,
	"text":     PlainText,
	"csv":      "text/csv",
	"yaml":     "text/yaml",
	"yml":      "text/yaml",
	"coffee":   "text/coffeescript",

	"svg":  "image/svg+xml",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"avif": "image/avif",
	"ico":  "image/x-icon",
	"bmp":  "image/bmp",

	"ttf":   "font/ttf",
	"otf":   "font/otf",
	"woff":  "font/woff",
	"woff2": "font/woff2",

	"mp3":  "audio/mpeg",
	"ogg":  "audio/ogg",
	"wav":  "audio/wav",
	"mp4":  "video/mp4",
	"webm": "video/webm",
}

var contentTypeNames = map[string]string{
	JavaScript:                      "JavaScript",
	"application/json":              "JSON",
	"application/octet-stream":      "Binary",
	"application/vnd.ms-fontobject": "Embedded OpenType",
	"application/xml":               "XML",
	"image/svg+xml":                 "SVG",
	"font/ttf":                      "TrueType Font",
	"font/woff":                     "WOFF",
	"font/woff2":                    "WOFF2",
	"text/css":                      "CSS",
	HTML:                            "HTML",
	"text/jsx":                      "JSX",
	"text/markdown":                 "Markdown",
	PlainText:                       "Plain Text",
	"text/x-scss":                   "SCSS",
	"text/yaml":                     "YAML",
}
