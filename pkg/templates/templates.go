package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Template names
const (
	ProxySite = "proxy-site"
)

// defaultProxySite is the built-in nginx reverse-proxy server block.
// It listens on port 80, matches the target's public address, and forwards
// everything to the loopback-bound container, passing the headers the
// backend needs to see the real client and protocol.
const defaultProxySite = `server {
    listen 80;
    server_name {{SERVER_NAME}};

    location / {
        proxy_pass http://127.0.0.1:{{PORT}};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }
}
`

var defaults = map[string]string{
	ProxySite: defaultProxySite,
}

// TemplateData holds variables for template rendering.
type TemplateData map[string]string

// GetTemplatePaths returns the filesystem override search paths for a template.
func GetTemplatePaths(templateName string) []string {
	filename := templateName + ".template"
	return []string{
		filepath.Join(".", "templates", filename),
		filepath.Join(".", "config", "templates", filename),
		filepath.Join("/etc", "dockship", "templates", filename),
	}
}

// GetTemplate returns the raw template content by name. A file on one of
// the override paths wins over the built-in default:
// 1. ./templates/<name>.template
// 2. ./config/templates/<name>.template
// 3. /etc/dockship/templates/<name>.template
func GetTemplate(name string) (string, error) {
	def, ok := defaults[name]
	if !ok {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	for _, path := range GetTemplatePaths(name) {
		if content, err := os.ReadFile(path); err == nil {
			return string(content), nil
		}
	}

	return def, nil
}

// Render renders a template with the given data.
// Uses {{PLACEHOLDER}} syntax for variable substitution.
func Render(templateName string, data TemplateData) (string, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	rendered := tmplContent
	for key, value := range data {
		placeholder := fmt.Sprintf("{{%s}}", key)
		rendered = strings.ReplaceAll(rendered, placeholder, value)
	}

	return rendered, nil
}

// RenderProxySite renders the nginx reverse-proxy site for a deployment:
// serverName is the public address of the host, port the loopback port the
// container is bound to.
func RenderProxySite(serverName string, port int) (string, error) {
	return Render(ProxySite, TemplateData{
		"SERVER_NAME": serverName,
		"PORT":        fmt.Sprintf("%d", port),
	})
}

