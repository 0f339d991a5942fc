package bot

import (
	"fmt"
	"strings"

	"github.com/yk2estrella/leitobot3.0/internal/fsstore"
	"gopkg.in/yaml.v3"
)

// Texts holds every fixed reply the bot sends. Operators can override any
// of them from a YAML file without rebuilding; missing keys keep their
// defaults.
type Texts struct {
	Greeting        string `yaml:"greeting"`
	Help            string `yaml:"help"`
	FolderUpdated   string `yaml:"folder_updated"`
	FolderHeader    string `yaml:"folder_header"`
	FolderEmpty     string `yaml:"folder_empty"`
	SearchFound     string `yaml:"search_found"`
	SearchNotFound  string `yaml:"search_not_found"`
	GroupClosed     string `yaml:"group_closed"`
	GroupOpened     string `yaml:"group_opened"`
	Banned          string `yaml:"banned"`
	BanUsage        string `yaml:"ban_usage"`
	Welcome         string `yaml:"welcome"`
	DefaultImageURL string `yaml:"default_image_url"`
}

func DefaultTexts() Texts {
	return Texts{
		Greeting: "Hola, soy Leitobot ⭐",
		Help: strings.Join([]string{
			"🧠 *Comandos disponibles de Leitobot*:",
			"",
			`#tag "texto" — Etiqueta a todos y replica el texto.`,
			"#updatefolder01...05 — Guarda texto en la carpeta.",
			"#folder01...05 — Muestra lo guardado.",
			`#botsearch "texto" — Busca en todas las carpetas.`,
			"#ban — Elimina al usuario del mensaje citado.",
			"#closegroup — Cierra el grupo.",
			"#opengroup — Abre el grupo.",
		}, "\n"),
		FolderUpdated:   "📂 Carpeta %s actualizada.",
		FolderHeader:    "📄 Lista de carpeta %s:",
		FolderEmpty:     "🚫 Carpeta vacía.",
		SearchFound:     "✅ ¡Encontrado! Está añadido en la carpeta %s. ⭐",
		SearchNotFound:  "😥 Ouh... Aún no está añadido, dile a Leo que lo suba.",
		GroupClosed:     "Buena noche, el grupo será cerrado, hasta mañana. 💕",
		GroupOpened:     "¡Buen día! El grupo ya está abierto, no se olviden de leer las reglas.",
		Banned:          "🚫 Fuiste baneado por Leo.",
		BanUsage:        "❌ Usa #ban como respuesta a un mensaje.",
		Welcome:         "¡Hola! Soy Leitobot ⭐ y espero que disfrutes el grupo @%s 👋",
		DefaultImageURL: "https://i.ibb.co/fD0bDKZ/default-pfp.png",
	}
}

// LoadTexts overlays the YAML file at path onto the defaults. An empty path
// or a missing file yields the defaults unchanged.
func LoadTexts(path string) (Texts, error) {
	out := DefaultTexts()
	path = strings.TrimSpace(path)
	if path == "" {
		return out, nil
	}
	content, exists, err := fsstore.ReadText(path)
	if err != nil {
		return Texts{}, fmt.Errorf("bot: read texts %s: %w", path, err)
	}
	if !exists {
		return out, nil
	}
	if err := yaml.Unmarshal([]byte(content), &out); err != nil {
		return Texts{}, fmt.Errorf("bot: parse texts %s: %w", path, err)
	}
	return out, nil
}
