package solver

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const verbosePrompt = `Kamu adalah tutor matematika ahli. Analisis gambar soal matematika ini dan berikan solusi lengkap.

INSTRUKSI:
1. Identifikasi jenis soal matematika pada gambar
2. Jelaskan langkah demi langkah penyelesaiannya dalam Bahasa Indonesia
3. Tulis semua rumus dan persamaan matematika menggunakan format LaTeX (contoh: $x^2 + 2x + 1 = 0$ atau $$\frac{a}{b}$$)
4. Berikan penjelasan yang mudah dipahami untuk setiap langkah
5. Tampilkan jawaban akhir dengan jelas

Mulai analisis dan penyelesaian soal:`

const concisePrompt = `Kamu adalah tutor matematika ahli. Selesaikan soal matematika ini dengan format SANGAT RINGKAS.

ATURAN FORMAT (WAJIB, TANPA PENGECUALIAN):
1. Tanpa kalimat pembuka, penutup, atau penjelasan naratif apa pun
2. Setiap langkah hanya berupa label singkat lalu ekspresi matematika, contoh: **Langkah 1:** $2x + 3 = 7$
3. SEMUA angka, variabel, dan ekspresi numerik wajib ditulis dalam LaTeX ($...$ atau $$...$$), termasuk angka tunggal
4. Jangan menulis ulang soal
5. Baris terakhir: **Jawaban:** lalu hasil akhir dalam LaTeX

Mulai:`

// TextAddendum labels user-typed text appended to the instruction.
const TextAddendum = "\n\nSOAL TAMBAHAN DARI USER: "

// Prompts holds the instruction text per mode.
type Prompts struct {
	Verbose string `yaml:"verbose"`
	Concise string `yaml:"concise"`
}

func DefaultPrompts() Prompts {
	return Prompts{Verbose: verbosePrompt, Concise: concisePrompt}
}

// LoadPrompts reads a YAML file with optional verbose/concise keys. Missing
// keys keep their defaults; an empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read prompts: %w", err)
	}
	var over Prompts
	if err := yaml.Unmarshal(b, &over); err != nil {
		return p, fmt.Errorf("parse prompts %s: %w", path, err)
	}
	if s := strings.TrimSpace(over.Verbose); s != "" {
		p.Verbose = s
	}
	if s := strings.TrimSpace(over.Concise); s != "" {
		p.Concise = s
	}
	return p, nil
}

// Instruction returns the instruction block for mode, with text appended
// under the addendum label when it is not blank.
func (p Prompts) Instruction(mode Mode, text string) string {
	base := p.Verbose
	if mode == ModeConcise {
		base = p.Concise
	}
	if t := strings.TrimSpace(text); t != "" {
		return base + TextAddendum + t
	}
	return base
}
