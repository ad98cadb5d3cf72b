package domain

import "github.com/google/uuid"

// EmptyProjectContent is placed in the file synthesized when a delete empties a project.
const EmptyProjectContent = "<h1>Comece a Programar</h1>"

// NewID returns a fresh opaque node or turn identifier.
func NewID() string {
	return uuid.NewString()
}

// EmptyProjectFile is the single file a project falls back to when it would otherwise be empty.
func EmptyProjectFile() FileNode {
	return FileNode{
		ID:       NewID(),
		Kind:     KindFile,
		Name:     "index.html",
		Language: LangHTML,
		Content:  EmptyProjectContent,
	}
}

// DefaultProject returns the bundled starter project with fresh ids.
func DefaultProject() []FileNode {
	return []FileNode{
		{ID: NewID(), Kind: KindFile, Name: "index.html", Language: LangHTML, Content: defaultIndexHTML},
		{ID: NewID(), Kind: KindFile, Name: "style.css", Language: LangCSS, Content: defaultStyleCSS},
		{ID: NewID(), Kind: KindFile, Name: "script.js", Language: LangJavaScript, Content: defaultScriptJS},
	}
}

const defaultIndexHTML = `<!DOCTYPE html>
<html lang="pt-BR">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Pré-visualização Mobile</title>
  <link rel="stylesheet" href="/style.css">
</head>
<body>
  <div class="container">
    <h1>Olá Mundo</h1>
    <p>Bem-vindo ao MobileCoder IDE.</p>
    <button id="clickBtn">Clique Aqui</button>
    <p id="output"></p>
    <!-- Tente fazer upload de uma imagem para uma pasta 'assets' e referenciá-la aqui! -->
    <!-- <img src="/assets/minha-imagem.png" /> -->
  </div>
  <script src="/script.js"></script>
</body>
</html>`

const defaultStyleCSS = `body {
  font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
  background: #121212;
  color: #fff;
  display: flex;
  justify-content: center;
  align-items: center;
  height: 100vh;
  margin: 0;
}

.container {
  text-align: center;
  padding: 20px;
  background: #1e1e1e;
  border-radius: 12px;
  box-shadow: 0 4px 6px rgba(0,0,0,0.3);
}

button {
  background: #3b82f6;
  color: white;
  border: none;
  padding: 10px 20px;
  border-radius: 6px;
  font-size: 16px;
  cursor: pointer;
  margin-top: 10px;
}

button:active {
  transform: scale(0.98);
}`

const defaultScriptJS = "const btn = document.getElementById('clickBtn');\n" +
	"const output = document.getElementById('output');\n" +
	"let count = 0;\n" +
	"\n" +
	"btn.addEventListener('click', () => {\n" +
	"  count++;\n" +
	"  output.textContent = `Você clicou no botão ${count} vezes!`;\n" +
	"\n" +
	"  // Efeito de cor aleatória\n" +
	"  const hue = Math.floor(Math.random() * 360);\n" +
	"  btn.style.backgroundColor = `hsl(${hue}, 70%, 50%)`;\n" +
	"});"
