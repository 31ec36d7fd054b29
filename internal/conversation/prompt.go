package conversation

import (
	"fmt"
	"strings"
)

// Prompt composes the image generation prompt from the collected fields.
func Prompt(st State) string {
	var b strings.Builder

	b.WriteString("Crée une affiche publicitaire professionnelle")
	if st.Domain != "" {
		fmt.Fprintf(&b, " pour le domaine « %s »", st.Domain)
	}
	b.WriteString(".\n")

	if st.Description != "" {
		fmt.Fprintf(&b, "Contenu et informations à afficher : %s\n", st.Description)
	}
	if len(st.Colors) > 0 {
		fmt.Fprintf(&b, "Palette de couleurs : %s.\n", strings.Join(st.Colors, ", "))
	}
	if st.ReferenceImageURL != "" || st.ReferenceTemplateID != nil {
		b.WriteString("Inspire-toi du style, de la composition et de la typographie de l'image de référence fournie.\n")
	}
	if st.ContentImageURL != "" {
		b.WriteString("Intègre l'image de contenu fournie (produit, personne ou logo) de façon visible.\n")
	}
	fmt.Fprintf(&b, "Résolution cible : %s. Textes en français, lisibles et sans fautes.", st.Resolution)

	return b.String()
}

// ReferenceURLs lists the images to send along with the prompt, reference
// first.
func ReferenceURLs(st State) []string {
	var urls []string
	if st.ReferenceImageURL != "" {
		urls = append(urls, st.ReferenceImageURL)
	}
	if st.ContentImageURL != "" {
		urls = append(urls, st.ContentImageURL)
	}
	return urls
}

var messages = map[Step]string{
	StepGreeting:     "Bonjour ! Je suis Graphiste GPT. Je vais vous aider à créer une affiche professionnelle en quelques questions. On commence ?",
	StepDomain:       "Dans quel domaine se situe votre activité ? (restaurant, église, mode, événementiel, immobilier…)",
	StepDetails:      "Décrivez votre affiche : titre, slogan, dates, prix, contacts et toute information à afficher.",
	StepReference:    "Avez-vous une affiche de référence dont le style vous plaît ? Choisissez un modèle, envoyez une image, ou passez cette étape.",
	StepColors:       "Quelles couleurs souhaitez-vous ? Indiquez de 1 à 5 couleurs (noms ou codes hexadécimaux).",
	StepContentImage: "Voulez-vous ajouter une image à intégrer (produit, photo, logo) ? Envoyez-la ou passez cette étape, puis choisissez la résolution.",
	StepGenerating:   "Parfait ! Je génère votre affiche, cela peut prendre jusqu'à une minute…",
	StepComplete:     "Votre affiche est prête ! Vous pouvez la télécharger ou recommencer une nouvelle création.",
}

// Message returns the assistant's prompt for a step.
func Message(s Step) string {
	return messages[s]
}
