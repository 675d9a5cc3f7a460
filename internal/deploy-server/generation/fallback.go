package generation

import "fmt"

// fallbackTemplate is used when the generator backend is unreachable,
// so a publishable artifact still exists.
func fallbackTemplate(brief string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Generated App</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%);
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            padding: 20px;
        }
        .container {
            background: white;
            border-radius: 12px;
            padding: 40px;
            max-width: 600px;
            width: 100%%;
            box-shadow: 0 20px 60px rgba(0,0,0,0.3);
        }
        h1 { color: #333; margin-bottom: 20px; }
        p { color: #666; line-height: 1.6; margin-bottom: 20px; }
        .brief { background: #f5f5f5; padding: 15px; border-radius: 8px; margin-top: 20px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Generated Application</h1>
        <p>This application was automatically generated based on the following requirements:</p>
        <div class="brief">
            <strong>Brief:</strong><br>
            %s
        </div>
        <p style="margin-top: 20px; font-size: 14px; color: #999;">
            Note: This is a placeholder. The full application will be generated by the LLM.
        </p>
    </div>
</body>
</html>`, brief)
}

func fallbackReadme(brief, taskID string) string {
	return fmt.Sprintf(`# %s

## Description
%s

## Setup
1. Clone this repository
2. Open `+"`index.html`"+` in a web browser

## Usage
Open the application in your browser and follow the on-screen instructions.

## Technical Details
This is a single-page web application built with HTML, CSS, and JavaScript.

## License
MIT License - see LICENSE file for details
`, taskID, brief)
}
