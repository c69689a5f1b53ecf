package patterns

// builtinCategories is the shipped rule table, OWASP CRS style: each attack
// category carries an ordered list of (regex, severity tier) rules. Severity
// tiers weigh CRITICAL=5 ERROR=4 WARNING=3 NOTICE=2; the rule engine sums the
// weights of every matched rule into the inbound anomaly score.
//
// Category order is significant: score ties between candidate categories
// break by encounter order.
//
// The table is data, not logic - deployments tune it via a YAML overlay
// (RAMPART_PATTERN_OVERLAY) without touching the engine.
var builtinCategories = []CategorySpec{

	{Name: "SQL Injection", Rules: []RuleSpec{
		// CRITICAL - unambiguous SQLi
		{`\bunion\s+(all\s+)?select\b`, SeverityCritical},
		{`\bselect\b.{1,200}?\bfrom\b`, SeverityCritical},
		{`\b(waitfor\s+delay|sleep\s*\(|benchmark\s*\(|pg_sleep\s*\()`, SeverityCritical},
		{`\b(exec\s*\(|execute\s*\(|xp_cmdshell\s*\(|sp_executesql\s*\()`, SeverityCritical},
		{`\binto\s+(outfile|dumpfile)\b`, SeverityCritical},
		{`\binformation_schema\.(tables|columns|schemata)\b`, SeverityCritical},
		{`\bload_file\s*\(`, SeverityCritical},

		// ERROR - high confidence
		{`\bselect\s+(@@version|version\s*\(\)|database\s*\(\)|user\s*\(\)|schema\s*\(\))`, SeverityError},
		{`\b(drop|truncate)\s+(table|database|schema)\b`, SeverityError},
		{`\b(insert\s+into|update\s+\w+\s+set|delete\s+from)\b`, SeverityError},
		{`;\s*(select|insert|update|delete|drop|create|alter|exec)\b`, SeverityError},
		{`\bmysql\.(user|db|tables_priv)\b`, SeverityError},
		{`/\*!?\d{0,5}\s*(select|union|update|delete|insert|drop|alter)\b`, SeverityError},

		// WARNING - medium confidence
		{`['"]?\s+\b(and|or)\b\s+['"]?\d+['"]?\s*=\s*['"]?\d+`, SeverityWarning},
		{`\b(concat|group_concat|substring|substr|ascii|hex|chr|ord)\s*\(`, SeverityWarning},
		{`\b(cast|convert|extractvalue|updatexml|xmltype)\s*\(`, SeverityWarning},
		{`\border\s+by\s+\d+\b`, SeverityWarning},
		{`\bhaving\s+\d+\s*=\s*\d+`, SeverityWarning},
		{`\b(sys\.tables|sys\.columns|sysobjects|syscolumns)\b`, SeverityWarning},

		// NOTICE - potential indicators
		{`0x[0-9a-f]{4,}`, SeverityNotice},
		{`\bchar\s*\(\d+`, SeverityNotice},
		{`'\s*;\s*--`, SeverityNotice},
	}},

	{Name: "Cross-Site Scripting", Rules: []RuleSpec{
		// CRITICAL - direct script execution
		{`<\s*script[^>]*>`, SeverityCritical},
		{`javascript\s*:`, SeverityCritical},
		{`\beval\s*\(`, SeverityCritical},
		{`document\s*\.\s*cookie`, SeverityCritical},
		{`window\s*\.\s*location\s*=`, SeverityCritical},
		{`document\s*\.\s*write\s*\(`, SeverityCritical},

		// ERROR - event handler / frame injection
		{`<\s*svg[^>]*\bon\w+\s*=`, SeverityError},
		{`<\s*iframe[^>]*(src|srcdoc)\s*=`, SeverityError},
		{`\.innerhtml\s*=`, SeverityError},
		{`\bon(load|error|click|focus|blur|change|submit|mouseover|mouseout)\s*=`, SeverityError},
		{`<\s*img[^>]*\bon\w+\s*=`, SeverityError},
		{`<\s*body[^>]*\bon\w+\s*=`, SeverityError},

		// WARNING
		{`<\s*(embed|object|applet)[^>]*(src|code|data)\s*=`, SeverityWarning},
		{`\b(atob|btoa|settimeout|setinterval|setimmediate)\s*\(`, SeverityWarning},
		{`string\.fromcharcode\s*\(`, SeverityWarning},
		{`<\s*details[^>]*\bon\w+\s*=`, SeverityWarning},
		{`<\s*video[^>]*\bon\w+\s*=`, SeverityWarning},

		// NOTICE
		{`</\s*script\s*>`, SeverityNotice},
		{`fromcharcode\s*\(`, SeverityNotice},
		{`vbscript\s*:`, SeverityNotice},
	}},

	{Name: "Command Injection", Rules: []RuleSpec{
		// CRITICAL - direct RCE
		{`(?:;|\||&&|\|\|)\s*(?:bash|sh|zsh|ksh|csh|tcsh|powershell|cmd\.exe|cmd)\b`, SeverityCritical},
		{`(?:;|\||&&|\|\|)\s*(?:wget|curl|nc|netcat|ncat|socat)\s+`, SeverityCritical},
		{`/bin/(?:ba)?sh\s+(?:-i|-c|\$)`, SeverityCritical},
		{`>\s*/dev/(?:tcp|udp)/`, SeverityCritical},
		{`\b(?:python|python3|perl|ruby|php|node)\s+-[ce]\s+['"]`, SeverityCritical},

		// ERROR - high confidence
		{`(?:;|\||&&|\|\|)\s*(?:id|whoami|uname|pwd|ls\s|dir\s|cat\s|type\s)`, SeverityError},
		{"`[^`]{1,200}`", SeverityError},
		{`\$\([^)]{1,200}\)`, SeverityError},
		{`>\s*/tmp/[a-z]`, SeverityError},
		{`\b(?:chmod|chown|chgrp)\s+[0-9o+\-]+\s+/`, SeverityError},
		{`\b(?:curl|wget)\s+https?://[^\s]+\s*\|\s*(?:bash|sh)\b`, SeverityError},

		// WARNING - only inside parameter values
		{`(?:=|%3d)[^&\s]*\b(?:ping|nslookup|dig|tracert|traceroute)\b`, SeverityWarning},
		{`\b(?:invoke-expression|iex|invoke-command)\b`, SeverityWarning},
		{`\b(?:system|passthru|shell_exec|popen|proc_open)\s*\(`, SeverityWarning},

		// NOTICE
		{`2>&1|1>&2`, SeverityNotice},
		{`\|\s*tee\s+/`, SeverityNotice},
	}},

	{Name: "Directory Traversal", Rules: []RuleSpec{
		{`(?:\.\./|\.\.\\){3,}`, SeverityCritical},
		{`/etc/(?:passwd|shadow|sudoers|hosts|crontab|group)\b`, SeverityCritical},
		{`(?:%2e%2e%2f|%2e%2e/|\.\.%2f){2,}`, SeverityCritical},

		{`\.\./.*\.\./`, SeverityError},
		{`%2e%2e[/%5c]`, SeverityError},
		{`/(?:proc|sys)/(?:self|net|version)\b`, SeverityError},
		{`c:\\(?:windows|users|program files)\\`, SeverityError},

		{`\b(?:php\.ini|httpd\.conf|nginx\.conf|web\.config|wp-config\.php)\b`, SeverityWarning},
		{`\.git[/\\](?:config|head|orig_head|packed-refs)\b`, SeverityWarning},

		{`\.\./`, SeverityNotice},
		{`\.\.\\`, SeverityNotice},
	}},

	{Name: "Local File Inclusion", Rules: []RuleSpec{
		{`\bphp://filter[^&\s]*resource=`, SeverityCritical},
		{`\bdata://text/plain`, SeverityCritical},
		{`\bexpect://`, SeverityCritical},
		{`\bphar://[^\s]+\.(?:php|phar)\b`, SeverityCritical},

		{`\bphp://(?:input|stdin|fd)\b`, SeverityError},
		{`\bfile://(?:/[a-z]|[a-z]:\\)`, SeverityError},
		{`\bzip://[^\s]+#`, SeverityError},

		{`\bcompress\.(?:zlib|bzip2)://`, SeverityWarning},
		{`\b(?:include|require)(?:_once)?\s*\(['"][^'"]*\.\.`, SeverityWarning},

		{`\.(?:phtml|phar|shtml|phps)\b`, SeverityNotice},
	}},

	{Name: "Server-Side Request Forgery", Rules: []RuleSpec{
		{`169\.254\.169\.254`, SeverityCritical},
		{`metadata\.google\.internal`, SeverityCritical},
		{`fd00:|::1\b`, SeverityCritical},
		{`0177\.0\.0\.1|0x7f000001`, SeverityCritical},

		{`https?://127\.0\.0\.1(?::\d+)?/`, SeverityError},
		{`https?://localhost(?::\d+)?/`, SeverityError},
		{`\b(?:gopher|dict|ldap|tftp)://`, SeverityError},

		{`https?://(?:10\.|172\.(?:1[6-9]|2[0-9]|3[01])\.|192\.168\.)`, SeverityWarning},
		{`https?://0\.0\.0\.0`, SeverityWarning},

		{`https?://https?://`, SeverityNotice},
	}},

	{Name: "Log Injection", Rules: []RuleSpec{
		{`\x1b\[[\d;]*[a-z]`, SeverityCritical},
		{`[\r\n][\s]*(?:admin|root|error|failed|success|login)\b`, SeverityCritical},

		{`[\x00-\x08\x0b\x0c\x0e-\x1f]`, SeverityError},
		{`[\r\n][\s]*(?:info|warn|error|debug|critical|fatal)\s*:`, SeverityError},

		{`(?:\?|&)\w+=[^&]*[\r\n]+\s*(?:info|warn|error|debug|fatal)\s*:`, SeverityWarning},
	}},

	// CRLF detection deliberately avoids flagging the literal newlines that
	// separate pasted request headers; only encoded CRLF or CRLF inside a
	// parameter value counts.
	{Name: "CRLF Injection", Rules: []RuleSpec{
		{`(?:=|%3d)[^&\s]*(?:%0d%0a|%0a%0d|%0d|%0a)[^&\s]*(?:set-cookie|location|content-type|content-length|transfer-encoding)\s*(?:%3a|:)`, SeverityCritical},
		{`(?:\?|&)\w+=[^&]*[\r\n]+\s*(?:set-cookie|location|content-type|content-length|transfer-encoding|x-[\w\-]+)\s*:`, SeverityCritical},

		{`\\r\\n[a-z][\w\-]+\s*:`, SeverityError},

		{`(?:%0d%0a){2,}`, SeverityWarning},
		{`(?:=|%3d)[^&\s]*(?:%0d%0a|%0a%0d)`, SeverityWarning},
	}},

	{Name: "HTML Injection", Rules: []RuleSpec{
		{`<\s*(?:html|body|head|form)[^>]*>`, SeverityCritical},
		{`<!doctype\s+html`, SeverityCritical},

		{`\.innerhtml\s*=|\.outerhtml\s*=|\.insertadjacenthtml\s*\(`, SeverityError},
		{`<\s*(?:meta|link|base)[^>]*>`, SeverityError},

		{`<\s*(?:input|button|select|textarea)[^>]*>`, SeverityWarning},
		{`&#\d{2,5};|&#x[0-9a-f]{2,5};`, SeverityWarning},
	}},

	{Name: "LDAP Injection", Rules: []RuleSpec{
		{`\(\|[^)]*\(|\\28\\7c|\\2a`, SeverityCritical},
		{`\bobjectclass\s*=\s*\*|\bcn\s*=\s*\*|\(\*\)`, SeverityCritical},

		{`\*\|\(|\|\*\(|\*&\(`, SeverityError},

		{`\bldap[_:]`, SeverityWarning},
		{`\bou\s*=|dc\s*=|uid\s*=`, SeverityNotice},
	}},

	{Name: "NoSQL Injection", Rules: []RuleSpec{
		{`\$\s*(?:where|regex|function|ne|gt|lt|gte|lte|in|nin|exists|type)\b`, SeverityCritical},
		{`\{\s*['"]?\$\w+`, SeverityCritical},
		{`\bdb\s*\.\s*\w+\s*\.\s*find\s*\(`, SeverityCritical},

		{`\$where\s*:`, SeverityError},
		{`\[\s*\$(?:ne|gt|lt|gte|lte|in|nin)\s*\]`, SeverityError},

		{`\.(?:find|findone|aggregate|count|distinct)\s*\(`, SeverityWarning},
		{`mapreduce|group\s*:\s*\{`, SeverityWarning},
	}},

	{Name: "Open Redirect", Rules: []RuleSpec{
		// External dotted-domain targets only; bare hosts (localhost) and raw
		// IPs fail the trailing alphabetic label.
		{`(?:redirect|location|goto|url|link|return_url|return_to|next|returnto|redirect_uri|continue|target|dest(?:ination)?)\s*=\s*https?://(?:[a-z0-9\-]+\.)+[a-z]{2,}`, SeverityCritical},
		{`(?:redirect|location|goto|url|next|target)\s*=\s*//[a-z0-9\-]+\.[a-z]{2,}`, SeverityCritical},

		{`(?:redirect|location|goto|url|next)\s*=\s*(?:javascript:|data:|vbscript:)`, SeverityError},

		{`(?:redirect|url|next)\s*=\s*[^&\s]*@[a-z0-9\-]+\.[a-z]{2,}`, SeverityWarning},
		{`(?:redirect|url|next)\s*=\s*///`, SeverityWarning},
	}},

	{Name: "Server-Side Template Injection", Rules: []RuleSpec{
		{`\{\{[^}]{1,200}\}\}`, SeverityCritical},
		{`\{%[^%]{1,200}%\}`, SeverityCritical},
		{`\$\{[^}]{1,200}\}`, SeverityCritical},
		{`#\{[^}]{1,200}\}`, SeverityCritical},
		{`<\?=.{1,200}\?>|<\?php.{1,200}\?>`, SeverityCritical},

		{`\b(?:__class__|__mro__|__subclasses__|__import__)\b`, SeverityError},
		{`\b(?:config\.items|self\._|request\.application)\b`, SeverityError},

		{`\b(?:namespace|block|macro|filter)\s+\w+`, SeverityWarning},
	}},

	{Name: "XML External Entity", Rules: []RuleSpec{
		{`<!entity\s+\w+\s+system\b`, SeverityCritical},
		{`\bsystem\s+['"](?:file|http|ftp|expect|php)://`, SeverityCritical},
		{`<!entity\s+%\s*\w+\s+system\b`, SeverityCritical},

		{`\b(?:loadxml|simplexml_load_string|simplexml_load_file)\b`, SeverityError},
		{`<!doctype\s+\w+\s*\[`, SeverityError},

		{`<!doctype\b|<!element\b`, SeverityWarning},
	}},

	{Name: "HTTP Request Smuggling", Rules: []RuleSpec{
		{`transfer-encoding\s*:\s*chunked[^\r\n]*[\r\n]+.*content-length\s*:`, SeverityCritical},
		{`content-length\s*:\s*\d+[^\r\n]*[\r\n]+.*transfer-encoding\s*:`, SeverityCritical},

		{`transfer-encoding\s*:\s*(?:xchunked|chunked\s|[\x09\x20]chunked)`, SeverityError},
		{`transfer-encoding\s*:\s*[^\r\n]*,\s*chunked`, SeverityError},

		{`content-length\s*:\s*-\d+`, SeverityWarning},
	}},

	{Name: "Prototype Pollution", Rules: []RuleSpec{
		{`__proto__\s*[\[.]`, SeverityCritical},
		{`constructor\s*\.\s*prototype\b`, SeverityCritical},
		{`\[['"]\s*__proto__\s*['"]\]`, SeverityCritical},

		{`prototype\s*\[`, SeverityError},
		{`__definegetter__|__definesetter__|__lookupgetter__`, SeverityError},

		{`object\.assign\s*\(\s*\{\}`, SeverityWarning},
		{`json\.parse\s*\([^)]*__proto__`, SeverityWarning},
	}},

	{Name: "JWT Attack", Rules: []RuleSpec{
		{`eyj[a-z0-9_\-]+\.eyj[a-z0-9_\-]+\.[a-z0-9_\-]*`, SeverityCritical},
		{`"alg"\s*:\s*"none"`, SeverityCritical},
		{`eyjhbgcioijub25lin0`, SeverityCritical},

		{`"alg"\s*:\s*"hs(?:256|384|512)"`, SeverityError},

		{`\.eyj[a-z0-9_\-]{10,}\.`, SeverityWarning},
	}},

	{Name: "GraphQL Injection", Rules: []RuleSpec{
		{`\b__schema\b|\b__type\b|\b__typename\b`, SeverityCritical},
		{`introspectionquery`, SeverityCritical},

		{`\bmutation\s*\{[^}]*(?:delete|drop|remove|update)\b`, SeverityError},
		{`\bquery\s*\{[^}]*\bpassword\b`, SeverityError},

		{`(?:query|mutation)\s*\{[^}]*\{[^}]*\{[^}]*\{`, SeverityWarning},
		{`\[\s*\{[^}]*query[^}]*\},\s*\{[^}]*query`, SeverityWarning},
	}},

	{Name: "Insecure Deserialization", Rules: []RuleSpec{
		{`ro0[a-z0-9+/]{10,}`, SeverityCritical},
		{`o:\d+:"[a-z_][a-z0-9_]*":\d+:\{`, SeverityCritical},
		{`s:\d+:"[^"]{0,200}";`, SeverityError},

		{`\\x80\\x(?:02|03|04|05)`, SeverityError},

		{`!!python/object(?:/apply)?:`, SeverityWarning},
		{`!!java\.(?:lang|util|io)\.`, SeverityWarning},
		{`!!ruby/object:`, SeverityWarning},
	}},

	{Name: "Web Cache Deception", Rules: []RuleSpec{
		{`(?:=|%3d)[^&\s]*cache[\s\-]?(?:control|expires|key|bypass)`, SeverityWarning},
		{`(?:=|%3d)[^&\s]*(?:if[\-\s]modified[\-\s]since|etag|pragma)`, SeverityWarning},
		{`x-original-url\s*:|x-rewrite-url\s*:`, SeverityNotice},
	}},

	{Name: "Information Disclosure", Rules: []RuleSpec{
		{`\.env(?:\.[a-z]+)?(?:\s|$|")`, SeverityError},
		{`\.git(?:/|\\)(?:config|head|log|pack)\b`, SeverityError},
		{`\b(?:id_rsa|id_dsa|id_ecdsa|id_ed25519|\.pem|\.p12|\.pfx)\b`, SeverityError},
		{`\bwp-config\.php\b|\bsettings\.py\b`, SeverityError},

		{`\b(?:backup|dump|export)\b.*\.(?:sql|zip|tar|gz|bak|old)\b`, SeverityWarning},
		{`/(?:phpinfo|info|debug)\.php\b`, SeverityWarning},
		{`\b(?:swagger|openapi|api-docs|graphiql)\b`, SeverityNotice},
	}},

	{Name: "Cross-Site Request Forgery", Rules: []RuleSpec{
		{`csrf(?:_token|[_\-]?key)?\s*=\s*(?:''|null|undefined|0|false)`, SeverityWarning},
		{`x-csrf-token\s*:\s*(?:null|undefined|''|0)`, SeverityWarning},
		{`authenticity_token\s*=\s*[a-f0-9]{32,}`, SeverityNotice},
	}},

	{Name: "Parameter Tampering", Rules: []RuleSpec{
		{`(?:price|amount|qty|quantity|total|cost)\s*=\s*-\d+`, SeverityWarning},
		{`(?:is_admin|role|privilege|permission)\s*=\s*(?:1|true|admin|superuser)`, SeverityWarning},
		{`(?:user_id|account_id|uid)\s*=\s*\d+`, SeverityNotice},
	}},

	{Name: "Sensitive Data Exposure", Rules: []RuleSpec{
		// Card number handed over as a named payment parameter
		{`(?:^|[=&\s])(?:ntc|cc|card|cardnumber|card_?num(?:ber)?|pan|cvv|ccnum)\s*=\s*\d{13,19}\b`, SeverityCritical},
		// Raw brand-prefixed card number anywhere in the body
		{`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`, SeverityCritical},

		{`\b\d{3}-\d{2}-\d{4}\b`, SeverityError},

		{`(?:get|head)[^\n]*\?[^\n]*(?:password|passwd|pwd|pass|secret)\s*=\s*[^&\s]{3,}`, SeverityWarning},

		{`@(?:mailinator|guerrillamail|tempmail|yopmail|sharklasers|trashmail|dispostable|maildrop|fakeinbox)\.`, SeverityNotice},
	}},

	{Name: "Account Fraud", Rules: []RuleSpec{
		// Card testing: card number together with CVV or expiry
		{`(?:ntc|cc|cardnum|card_number)\s*=\s*\d{13,19}[^&]*&[^&]*(?:cvv|cvc|cvv2|securitycode)\s*=\s*\d{3,4}`, SeverityCritical},
		{`(?:ntc|cc|cardnum)\s*=\s*\d{13,19}[^&]*&[^&]*(?:exp|expiry|expdate|exp_month|exp_year)\s*=`, SeverityCritical},

		{`(?:register|signup|account)[^&]*email\s*=\s*[^&@]+@[^&\s]+\.(?:pw|tk|ml|ga|cf|gq|xyz|top|click|loan|win|bid)\b`, SeverityError},

		{`(?:login|username)\s*=\s*(?:admin|root|administrator|guest|demo)\b`, SeverityWarning},
	}},
}
