package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"trainer-match-workers/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	renderCmd := flag.NewFlagSet("render", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, updateCmd, validateCmd, renderCmd} {
		fs.StringVar(&registryPath, "path", "configs/notification-templates.json", "Path to registry file")
	}

	idAdd := addCmd.String("id", "", "Template ID (e.g., top-match-email)")
	channel := addCmd.String("channel", "", "Delivery channel (email, sms)")
	subject := addCmd.String("subject", "", "Subject line, email only")
	body := addCmd.String("body", "", "Template body with {{placeholders}}")

	idUpdate := updateCmd.String("id", "", "Template ID to update")
	field := updateCmd.String("field", "", "Field to update (channel, subject, body)")
	value := updateCmd.String("value", "", "New value for the field")

	idRender := renderCmd.String("id", "", "Template ID to preview")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *channel == "" || *body == "" {
			fmt.Println("Error: id, channel, and body are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		tmpl := registry.Template{ID: *idAdd, Channel: *channel, Subject: *subject, Body: *body}
		if err := addTemplate(tmpl); err != nil {
			fmt.Printf("Error adding template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added template: %s\n", *idAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" {
			fmt.Println("Error: id and field are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateTemplate(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated template %s, field %s\n", *idUpdate, *field)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(registryPath)
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d templates.\n", len(reg.Templates))

	case "render":
		renderCmd.Parse(os.Args[2:])
		if err := renderTemplate(*idRender); err != nil {
			fmt.Printf("Error rendering template: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

// loadOrNew starts from the built-in templates when the file does not exist yet.
func loadOrNew() (*registry.TemplateRegistry, error) {
	reg, err := registry.LoadRegistry(registryPath)
	if err == nil {
		return reg, nil
	}
	if os.IsNotExist(err) {
		return registry.Default(), nil
	}
	return nil, fmt.Errorf("failed to load registry: %w", err)
}

func addTemplate(tmpl registry.Template) error {
	reg, err := loadOrNew()
	if err != nil {
		return err
	}
	if _, exists := reg.Find(tmpl.ID); exists {
		return fmt.Errorf("template with ID %s already exists", tmpl.ID)
	}

	reg.Templates = append(reg.Templates, tmpl)
	return save(reg)
}

func updateTemplate(id, field, value string) error {
	reg, err := loadOrNew()
	if err != nil {
		return err
	}
	tmpl, ok := reg.Find(id)
	if !ok {
		return fmt.Errorf("template with ID %s not found", id)
	}

	switch field {
	case "channel":
		tmpl.Channel = value
	case "subject":
		tmpl.Subject = value
	case "body":
		tmpl.Body = value
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return save(reg)
}

func renderTemplate(id string) error {
	reg, err := loadOrNew()
	if err != nil {
		return err
	}
	tmpl, ok := reg.Find(id)
	if !ok {
		return fmt.Errorf("template with ID %s not found", id)
	}

	sample := map[string]interface{}{
		"trainerName":      "Ada Lovelace",
		"requirementTitle": "Kubernetes bootcamp",
		"score":            0.87,
		"explanation":      "Strong overlap on kubernetes, go and helm.",
	}
	keys := make([]string, 0, len(sample))
	for k := range sample {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("Template %s (%s), sample fields %v\n\n", tmpl.ID, tmpl.Channel, keys)
	if tmpl.Subject != "" {
		fmt.Printf("Subject: %s\n\n", registry.Render(tmpl.Subject, sample))
	}
	fmt.Println(registry.Render(tmpl.Body, sample))
	return nil
}

func save(reg *registry.TemplateRegistry) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return reg.Save(registryPath)
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a notification template
  update   Update a template's channel, subject or body
  validate Validate the registry file
  render   Preview a template with sample data
  help     Show this help message

Examples:
  registry-updater add -id top-match-email-de -channel email -subject "Neuer Auftrag: {{requirementTitle}}" -body "Hallo {{trainerName}} ..."
  registry-updater update -id top-match-sms -field body -value "Top match for {{requirementTitle}} ({{score}})"
  registry-updater validate -path configs/notification-templates.json
  registry-updater render -id top-match-email

Use 'registry-updater <command> -h' for more information about a command.`)
}
