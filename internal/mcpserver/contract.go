package mcpserver

// DocumentFormatContract describes the markdown document format used in the
// vault, for MCP clients that read or summarise documents.
const DocumentFormatContract = `# Synapse Document Format

Every document in the vault is a Markdown file with an optional YAML header.

## Structure

` + "```" + `markdown
---
title: Renew passport               # display name; falls back to the file name
date: 2024-05-14                    # capture date, ISO-8601 text
source: https://example.com/article # where the capture came from, if anywhere
category: Actions                   # one of the filing folders
tags:                               # YAML list, lowercase
  - admin
status: open                        # actions: open | done; media: backlog | watching | done
due_date: 2024-06-01                # actions only
priority: high                      # actions only: low | medium | high
project: Homelab                    # optional project link
tokens_used: 412                    # oracle tokens spent filing the capture
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. The header fences must be the first thing in the file.
2. Header keys are English snake_case. Values and body may use any language.
3. Dates are stored as text (` + "`" + `YYYY-MM-DD` + "`" + `), never as timestamps.
4. Documents live one level under a filing folder: Projects, Actions, Media, Reference, Inbox.
5. File names are lowercase kebab-case slugs ending in ` + "`" + `.md` + "`" + `.
6. Attachments live in the flat ` + "`" + `Attachments/` + "`" + ` folder and are linked with
   ` + "`" + `![[name.png]]` + "`" + ` (images) or ` + "`" + `[[name.pdf]]` + "`" + ` (other files).

## Editing

Do not edit documents directly. Send a message through ` + "`" + `send_message` + "`" + `
(for example "mark the passport task as done"); the assistant plans and applies
header edits itself, touching at most 10 documents per request.
`
